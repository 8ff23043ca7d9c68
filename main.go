package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mongowire/mongowired/internal/dispatch"
	"github.com/mongowire/mongowired/internal/handler"
	"github.com/mongowire/mongowired/internal/metrics"
	"github.com/mongowire/mongowired/internal/server"
	"github.com/mongowire/mongowired/internal/serverinfo"
	"github.com/mongowire/mongowired/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mongowired",
		Short:         "mongowired — MongoDB wire-protocol compatible single-file database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("file", "mongowired.json", "data file path")
	root.PersistentFlags().String("db", "test", "database name")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("addr", ":27017", "address for the serve command to listen on")

	cobra.OnInitialize(func() { initConfig(root) })

	root.AddCommand(
		newServeCmd(),
		newFindCmd(),
		newInsertCmd(),
		newInsertManyCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newAggregateCmd(),
		newCountCmd(),
		newListDbsCmd(),
		newListCollectionsCmd(),
	)
	return root
}

// initConfig binds root's persistent flags into viper, layers in a
// MONGOWIRED_-prefixed environment override, and loads an optional
// mongowired.yaml from the working directory.
func initConfig(root *cobra.Command) {
	if err := viper.BindPFlags(root.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, "bind flags:", err)
		os.Exit(1)
	}
	viper.SetEnvPrefix("MONGOWIRED")
	viper.AutomaticEnv()
	viper.SetConfigName("mongowired")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "read config:", err)
			os.Exit(1)
		}
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func openEngine() (*store.Engine, error) {
	return store.New(viper.GetString("file"))
}

// --- serve ---

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MongoDB wire-protocol server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	log := newLogger()

	eng, err := openEngine()
	if err != nil {
		return fmt.Errorf("open %s: %w", viper.GetString("file"), err)
	}

	info := serverinfo.New()
	metricsSrc := metrics.NewPrometheusSource(prometheus.DefaultRegisterer)
	h := handler.New(eng, info, metricsSrc)
	d := dispatch.New(h)
	srv := server.New(viper.GetString("addr"), d, log)

	log.WithFields(logrus.Fields{
		"addr": viper.GetString("addr"),
		"file": viper.GetString("file"),
	}).Info("mongowired starting")
	return srv.ListenAndServe()
}

// --- CLI data commands ---
//
// These operate directly on the data file, bypassing the wire protocol, for
// scripting and local inspection (mongowired find users --filter '{}').

func extractCollection(args []string, cmdName string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%s requires a collection name", cmdName)
	}
	return args[0], nil
}

func newFindCmd() *cobra.Command {
	var filter, filterFile, sortSpec, sortFile string
	var limit, skip int64
	cmd := &cobra.Command{
		Use:   "find <collection>",
		Short: "Find documents in a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := extractCollection(args, "find")
			if err != nil {
				return err
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			filterDoc, err := parseJSONArg(filter, filterFile)
			if err != nil {
				return err
			}
			var sortDoc bson.D
			sortStr, err := readArg(sortSpec, sortFile)
			if err != nil {
				return err
			}
			if sortStr != "" {
				if err := bson.UnmarshalExtJSON([]byte(sortStr), false, &sortDoc); err != nil {
					return fmt.Errorf("parse sort: %w", err)
				}
			}
			results, err := eng.Find(viper.GetString("db"), coll, filterDoc, sortDoc, skip, limit)
			if err != nil {
				return fmt.Errorf("find: %w", err)
			}
			for _, doc := range results {
				if err := writeDoc(cmd.OutOrStdout(), doc); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "{}", "filter document (JSON)")
	cmd.Flags().StringVar(&filterFile, "filter-file", "", "filter document from file")
	cmd.Flags().StringVar(&sortSpec, "sort", "", "sort document (JSON)")
	cmd.Flags().StringVar(&sortFile, "sort-file", "", "sort document from file")
	cmd.Flags().Int64Var(&limit, "limit", 0, "max documents to return")
	cmd.Flags().Int64Var(&skip, "skip", 0, "documents to skip")
	return cmd
}

func newInsertCmd() *cobra.Command {
	var doc, docFile string
	cmd := &cobra.Command{
		Use:   "insert <collection>",
		Short: "Insert one document",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := extractCollection(args, "insert")
			if err != nil {
				return err
			}
			docVal, err := parseJSONArg(doc, docFile)
			if err != nil {
				return err
			}
			if len(docVal) == 0 {
				return fmt.Errorf("insert requires --doc or --doc-file")
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			id, err := eng.InsertOne(viper.GetString("db"), coll, docVal)
			if err != nil {
				return fmt.Errorf("insert: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), bson.D{{Key: "insertedId", Value: id}})
		},
	}
	cmd.Flags().StringVar(&doc, "doc", "", "document (JSON)")
	cmd.Flags().StringVar(&docFile, "doc-file", "", "document from file")
	return cmd
}

func newInsertManyCmd() *cobra.Command {
	var docs, docsFile string
	cmd := &cobra.Command{
		Use:   "insert-many <collection>",
		Short: "Insert multiple documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := extractCollection(args, "insert-many")
			if err != nil {
				return err
			}
			docsStr, err := readArg(docs, docsFile)
			if err != nil {
				return err
			}
			if docsStr == "" {
				return fmt.Errorf("insert-many requires --docs or --docs-file")
			}
			var arr []bson.D
			if err := bson.UnmarshalExtJSON([]byte(docsStr), false, &arr); err != nil {
				return fmt.Errorf("parse docs: %w", err)
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			ids, err := eng.InsertMany(viper.GetString("db"), coll, arr)
			if err != nil {
				return fmt.Errorf("insert-many: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), bson.D{{Key: "insertedCount", Value: len(ids)}})
		},
	}
	cmd.Flags().StringVar(&docs, "docs", "", "documents array (JSON)")
	cmd.Flags().StringVar(&docsFile, "docs-file", "", "documents array from file")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var filter, filterFile, update, updateFile string
	var multi bool
	cmd := &cobra.Command{
		Use:   "update <collection>",
		Short: "Update documents in a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := extractCollection(args, "update")
			if err != nil {
				return err
			}
			filterDoc, err := parseJSONArg(filter, filterFile)
			if err != nil {
				return err
			}
			updateDoc, err := parseJSONArg(update, updateFile)
			if err != nil {
				return err
			}
			if len(updateDoc) == 0 {
				return fmt.Errorf("update requires --update or --update-file")
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			var matched, modified int64
			if multi {
				matched, modified, _, err = eng.UpdateMany(viper.GetString("db"), coll, filterDoc, updateDoc, false)
			} else {
				matched, modified, _, err = eng.UpdateOne(viper.GetString("db"), coll, filterDoc, updateDoc, false)
			}
			if err != nil {
				return fmt.Errorf("update: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), bson.D{
				{Key: "matchedCount", Value: matched},
				{Key: "modifiedCount", Value: modified},
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "{}", "filter document (JSON)")
	cmd.Flags().StringVar(&filterFile, "filter-file", "", "filter document from file")
	cmd.Flags().StringVar(&update, "update", "", "update document (JSON)")
	cmd.Flags().StringVar(&updateFile, "update-file", "", "update document from file")
	cmd.Flags().BoolVar(&multi, "multi", false, "update multiple documents")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var filter, filterFile string
	var multi bool
	cmd := &cobra.Command{
		Use:   "delete <collection>",
		Short: "Delete documents from a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := extractCollection(args, "delete")
			if err != nil {
				return err
			}
			filterDoc, err := parseJSONArg(filter, filterFile)
			if err != nil {
				return err
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			deleted, err := eng.Remove(viper.GetString("db"), coll, filterDoc, multi)
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), bson.D{{Key: "deletedCount", Value: deleted}})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "{}", "filter document (JSON)")
	cmd.Flags().StringVar(&filterFile, "filter-file", "", "filter document from file")
	cmd.Flags().BoolVar(&multi, "multi", false, "delete multiple documents")
	return cmd
}

func newAggregateCmd() *cobra.Command {
	var pipeline, pipelineFile string
	cmd := &cobra.Command{
		Use:   "aggregate <collection>",
		Short: "Run an aggregation pipeline against a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := extractCollection(args, "aggregate")
			if err != nil {
				return err
			}
			pipelineStr, err := readArg(pipeline, pipelineFile)
			if err != nil {
				return err
			}
			if pipelineStr == "" {
				return fmt.Errorf("aggregate requires --pipeline or --pipeline-file")
			}
			var stages []bson.D
			if err := bson.UnmarshalExtJSON([]byte(pipelineStr), false, &stages); err != nil {
				return fmt.Errorf("parse pipeline: %w", err)
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			results, err := eng.Aggregate(viper.GetString("db"), coll, stages)
			if err != nil {
				return fmt.Errorf("aggregate: %w", err)
			}
			for _, doc := range results {
				if err := writeDoc(cmd.OutOrStdout(), doc); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "pipeline array (JSON)")
	cmd.Flags().StringVar(&pipelineFile, "pipeline-file", "", "pipeline array from file")
	return cmd
}

func newCountCmd() *cobra.Command {
	var filter, filterFile string
	cmd := &cobra.Command{
		Use:   "count <collection>",
		Short: "Count documents matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := extractCollection(args, "count")
			if err != nil {
				return err
			}
			filterDoc, err := parseJSONArg(filter, filterFile)
			if err != nil {
				return err
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			n, err := eng.Count(viper.GetString("db"), coll, filterDoc)
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), bson.D{{Key: "count", Value: n}})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "{}", "filter document (JSON)")
	cmd.Flags().StringVar(&filterFile, "filter-file", "", "filter document from file")
	return cmd
}

func newListDbsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-dbs",
		Short: "List database names",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			for _, name := range eng.ListDatabases() {
				if err := writeJSON(cmd.OutOrStdout(), bson.D{{Key: "name", Value: name}}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newListCollectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-collections",
		Short: "List collection names in a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			for _, name := range eng.ListCollections(viper.GetString("db")) {
				if err := writeJSON(cmd.OutOrStdout(), bson.D{{Key: "name", Value: name}}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// --- helpers ---

func parseJSONArg(inline, filePath string) (bson.D, error) {
	s, err := readArg(inline, filePath)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return bson.D{}, nil
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return doc, nil
}

func readArg(inline, filePath string) (string, error) {
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read file %s: %w", filePath, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return inline, nil
}

func writeDoc(w io.Writer, doc bson.D) error {
	ejson, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(ejson))
	return err
}

func writeJSON(w io.Writer, doc bson.D) error {
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	var compact json.RawMessage = data
	out, err := json.Marshal(compact)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
