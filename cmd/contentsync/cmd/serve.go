package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/contentsync/internal/lock"
	"github.com/dbsmedya/contentsync/internal/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analyze/apply HTTP API",
	Long: `Serve exposes analysis and batch apply over HTTP:

  GET  /healthz
  GET  /collections
  POST /collections/{name}/analyze
  POST /collections/{name}/apply     {"resolutions": {"<key>": "USE_FRONTEND"}}

Applies of one collection are serialized; a concurrent apply gets 409.

Example:
  contentsync serve --config contentsync.yaml --listen :8089`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "",
		"Override the listen address (server.listen)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	sess, err := newSession(commandContext(cmd), true)
	if err != nil {
		return err
	}
	defer sess.close()

	if serveListen != "" {
		sess.cfg.Server.Listen = serveListen
	}

	opts := []server.Option{server.WithJournal(sess.journal)}
	if db := sess.historyDB(); db != nil {
		opts = append(opts, server.WithLockFactory(func(collection string) lock.Locker {
			return lock.NewCollectionLock(db, collection)
		}))
	}

	srv, err := server.New(sess.cfg, sess.source, sess.store, sess.log, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := setupSignalHandler(sess.log)
	defer cancel()
	return srv.ListenAndServe(ctx)
}
