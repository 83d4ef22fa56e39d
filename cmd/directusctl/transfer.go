package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reise69/directus-go-sdk/pkg/brokers"
	"github.com/reise69/directus-go-sdk/pkg/directus"
	"github.com/reise69/directus-go-sdk/pkg/export"
	"github.com/reise69/directus-go-sdk/pkg/resultlog"
	cmssync "github.com/reise69/directus-go-sdk/pkg/sync"
)

// Sink and source kinds accepted by export and import.
const (
	kindFile   = "file"
	kindXLSX   = "xlsx"
	kindBroker = "broker"
	kindS3     = "s3"
	kindSQL    = "sql"
	kindMongo  = "mongo"
)

type encodingFlags struct {
	format   string
	compress bool
}

func (f *encodingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "", "payload format: json or msgpack (default from config)")
	cmd.Flags().BoolVar(&f.compress, "compress", false, "zstd-compress payloads")
}

func (a *app) encoder(f encodingFlags) (*export.Encoder, error) {
	cfg := a.cfg.Export.EncoderConfig
	if f.format != "" {
		cfg.Format = export.Format(f.format)
	}
	if f.compress {
		cfg.Compress = true
	}
	return export.NewEncoder(cfg)
}

func (a *app) exportCmd() *cobra.Command {
	var (
		kind          string
		output        string
		incremental   bool
		trackingField string
		qf            queryFlags
		ef            encodingFlags
	)
	cmd := &cobra.Command{
		Use:   "export <collection>",
		Short: "Copy a collection to a file, spreadsheet, queue, bucket or database",
		Example: `  directusctl export articles --sink xlsx --output articles.xlsx
  directusctl export articles --sink broker --sql "WHERE status = 'published'" --format msgpack --compress
  directusctl export articles --sink sql --incremental --tracking-field date_updated`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			inc := a.cfg.Sync
			if incremental {
				inc.Enabled = true
			}
			if trackingField != "" {
				inc.TrackingField = trackingField
			}
			if err := inc.Validate(); err != nil {
				return err
			}

			var states *cmssync.StateManager
			if inc.Enabled {
				var err error
				if states, err = cmssync.NewStateManager(inc.StateFile); err != nil {
					return err
				}
			}

			enc, err := a.encoder(ef)
			if err != nil {
				return err
			}
			defer enc.Close()

			return a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				sink, err := a.openSink(ctx, kind, collection, output, enc)
				if err != nil {
					return err
				}
				q := qf.query()
				var tracker *cmssync.Tracker
				if states != nil {
					q = inc.Query(q, states.State(collection).LastValue)
					tracker = cmssync.NewTracker(sink, inc.TrackingField)
					sink = tracker
				}

				ex := export.NewExporter(c, sink,
					export.WithBatchSize(a.cfg.Export.BatchSize),
					export.WithLogger(log.Logger))

				res, runErr := ex.Export(ctx, collection, q)
				if err := sink.Close(); err != nil {
					runErr = errors.Join(runErr, fmt.Errorf("close %s sink: %w", kind, err))
				}
				if states != nil {
					runErr = checkpoint(states, collection, tracker.Last(), res.Items, runErr)
				}
				a.publish(ctx, "export", kind, res, runErr)
				if runErr != nil {
					return runErr
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d items of %s in %d batches to %s\n",
					res.Items, collection, res.Batches, kind)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "sink", kindFile, "file, xlsx, broker, s3, sql or mongo")
	cmd.Flags().StringVar(&output, "output", "", "output path for file and xlsx sinks")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "only export items changed since the last incremental run")
	cmd.Flags().StringVar(&trackingField, "tracking-field", "", "field that grows on every change (default from config)")
	qf.register(cmd)
	ef.register(cmd)
	return cmd
}

// checkpoint moves the incremental mark after a successful export and
// records the error of a failed one.
func checkpoint(states *cmssync.StateManager, collection, last string, items int, runErr error) error {
	if runErr != nil {
		if err := states.Fail(collection, runErr); err != nil {
			log.Warn().Err(err).Str("collection", collection).Msg("could not record failed run")
		}
		return runErr
	}
	if err := states.Update(collection, last, items); err != nil {
		return fmt.Errorf("save incremental state: %w", err)
	}
	log.Debug().Str("collection", collection).Str("last", last).Msg("incremental mark saved")
	return nil
}

func (a *app) openSink(ctx context.Context, kind, collection, output string, enc *export.Encoder) (export.Sink, error) {
	if output == "" {
		output = a.cfg.Export.Output
	}
	switch kind {
	case kindFile:
		if output == "" {
			output = collection + ".ndjson"
		}
		return export.NewFileSink(output, enc)
	case kindXLSX:
		if output == "" {
			output = collection + ".xlsx"
		}
		return export.NewXLSXSink(output)
	case kindBroker:
		b, err := a.connectBroker(ctx)
		if err != nil {
			return nil, err
		}
		return export.NewBrokerSink(b, enc), nil
	case kindS3:
		if a.cfg.S3.Bucket == "" {
			return nil, errors.New("s3.bucket is not configured")
		}
		up, err := export.NewS3Uploader(ctx, a.cfg.S3)
		if err != nil {
			return nil, err
		}
		return export.NewS3Sink(up, a.cfg.S3.Bucket, a.cfg.S3.Prefix, enc), nil
	case kindSQL:
		return export.OpenSQLSink(ctx, a.cfg.Database)
	case kindMongo:
		return export.OpenMongoSink(ctx, a.cfg.Mongo)
	default:
		return nil, fmt.Errorf("unknown sink %q", kind)
	}
}

func (a *app) connectBroker(ctx context.Context) (brokers.MessageBroker, error) {
	b, err := brokers.New(a.cfg.Broker)
	if err != nil {
		return nil, err
	}
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (a *app) importCmd() *cobra.Command {
	var (
		from  string
		input string
	)
	cmd := &cobra.Command{
		Use:   "import [collection]",
		Short: "Load exported batches into a collection",
		Long: `Load batches written by "export --sink broker" or "export --sink file".
Without a collection every batch goes back to the collection it came from.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var collection string
			if len(args) == 1 {
				collection = args[0]
			}
			enc, err := a.encoder(encodingFlags{})
			if err != nil {
				return err
			}
			defer enc.Close()

			return a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				src, closeSrc, err := a.openSource(ctx, from, input)
				if err != nil {
					return err
				}
				defer closeSrc()

				im := export.NewImporter(c, enc,
					export.WithBatchSize(a.cfg.Export.BatchSize),
					export.WithIdleTimeout(a.cfg.Export.IdleTimeout),
					export.WithLogger(log.Logger))

				res, runErr := im.Import(ctx, src, collection)
				a.publish(ctx, "import", from, res, runErr)
				if runErr != nil {
					return runErr
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d items into %s in %d batches from %s\n",
					res.Items, res.Collection, res.Batches, from)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", kindBroker, "broker or file")
	cmd.Flags().StringVar(&input, "input", "", "input path for --from file")
	return cmd
}

func (a *app) openSource(ctx context.Context, from, input string) (export.Source, func(), error) {
	switch from {
	case kindBroker:
		b, err := a.connectBroker(ctx)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case kindFile:
		if input == "" {
			return nil, nil, errors.New("--input is required with --from file")
		}
		src, err := export.OpenFileSource(input)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { _ = src.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q", from)
	}
}

// publish reports a run to Redis when the result log is enabled. Failures
// are logged and do not fail the command.
func (a *app) publish(ctx context.Context, operation, target string, res export.Result, runErr error) {
	rl := a.cfg.ResultLog
	if !rl.Enabled {
		return
	}
	name := rl.Name
	if name == "" {
		name = operation + "-" + res.Collection
	}

	p := resultlog.NewRedisPublisher(rl.Config)
	defer p.Close()

	r := resultlog.RunResult{
		Name:       name,
		Operation:  operation,
		Collection: res.Collection,
		Target:     target,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Batches:    res.Batches,
		Items:      res.Items,
	}
	r.Finish(runErr)
	if err := p.Publish(ctx, r); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("could not publish run result")
	}
}
