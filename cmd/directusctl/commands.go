package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
	"github.com/reise69/directus-go-sdk/pkg/core/sqlfilter"
	"github.com/reise69/directus-go-sdk/pkg/directus"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func converter(precedence bool) *sqlfilter.Converter {
	mode := sqlfilter.ModeLegacy
	if precedence {
		mode = sqlfilter.ModePrecedence
	}
	return sqlfilter.NewConverter(sqlfilter.WithMode(mode), sqlfilter.WithLogger(log.Logger))
}

func (a *app) convertCmd() *cobra.Command {
	var precedence, strict bool
	cmd := &cobra.Command{
		Use:     "convert <sql>",
		Short:   "Print the Directus query for a WHERE/ORDER BY/LIMIT fragment",
		Example: `  directusctl convert "WHERE status = 'published' AND views > 10 ORDER BY -date LIMIT 5"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := strings.Join(args, " ")
			conv := converter(precedence)
			if strict {
				if err := conv.Validate(sql); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), query.SearchRequest{Query: conv.Convert(sql)})
		},
	}
	cmd.Flags().BoolVar(&precedence, "precedence", false, "give AND priority over OR")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on any part of the input that would be skipped")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := &a.cfg.Directus
			if email != "" {
				d.Email = email
			}
			if password != "" {
				d.Password = password
			}
			if d.Email == "" || d.Password == "" {
				return errors.New("email and password are required")
			}
			// A static token would bypass the login.
			d.Token = ""
			if err := removeSession(d.SessionFile); err != nil {
				return err
			}

			return a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				if err := saveSession(d.SessionFile, d.URL, c.Session()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", d.URL, d.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (default from config)")
	cmd.Flags().StringVar(&password, "password", "", "account password (default from config)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				return c.Logout(ctx)
			})
			if rmErr := removeSession(a.cfg.Directus.SessionFile); rmErr != nil {
				return rmErr
			}
			if err != nil && !errors.Is(err, directus.ErrNotAuthenticated) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				me, err := c.Me(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "ID:\t%s\n", me.ID)
				fmt.Fprintf(w, "Email:\t%s\n", me.Email)
				if name := strings.TrimSpace(me.FirstName + " " + me.LastName); name != "" {
					fmt.Fprintf(w, "Name:\t%s\n", name)
				}
				fmt.Fprintf(w, "Status:\t%s\n", me.Status)
				return w.Flush()
			})
		},
	}
}

func (a *app) collectionsCmd() *cobra.Command {
	var userOnly bool
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				list := c.Collections
				if userOnly {
					list = c.UserCollections
				}
				cols, err := list(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "COLLECTION\tSYSTEM")
				for _, col := range cols {
					fmt.Fprintf(w, "%s\t%t\n", col.Collection, col.IsSystem())
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&userOnly, "user-only", false, "hide directus_ system collections")
	return cmd
}

func (a *app) duplicateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <source> <target>",
		Short: "Copy a collection's schema and items into a new collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				n, err := c.DuplicateCollection(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Duplicated %s into %s (%d items)\n", args[0], args[1], n)
				return nil
			})
		},
	}
}

// queryFlags are shared by commands that read items.
type queryFlags struct {
	sql        string
	search     string
	fields     []string
	limit      int
	precedence bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sql, "sql", "", "WHERE/ORDER BY/LIMIT fragment to filter with")
	cmd.Flags().StringVar(&f.search, "search", "", "full-text search term")
	cmd.Flags().StringSliceVar(&f.fields, "fields", nil, "fields to return")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum items (-1 for all)")
	cmd.Flags().BoolVar(&f.precedence, "precedence", false, "give AND priority over OR in --sql")
}

func (f *queryFlags) query() query.Query {
	var q query.Query
	if f.sql != "" {
		q = converter(f.precedence).Convert(f.sql)
	}
	if f.search != "" {
		q.Search = f.search
	}
	if len(f.fields) > 0 {
		q.Fields = f.fields
	}
	if f.limit != 0 {
		n := f.limit
		q.Limit = &n
	}
	return q
}

func (a *app) itemsCmd() *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "items <collection>",
		Short: "Print items of a collection as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				items, err := c.SearchItems(ctx, args[0], qf.query())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	qf.register(cmd)
	return cmd
}

func (a *app) uploadCmd() *cobra.Command {
	var title, folder string
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			meta := map[string]any{}
			if title != "" {
				meta["title"] = title
			}
			if folder != "" {
				meta["folder"] = folder
			}
			return a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				file, err := c.UploadFile(ctx, filepath.Base(args[0]), f, meta)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s as %s (%s)\n", args[0], file.ID, file.Type)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "file title")
	cmd.Flags().StringVar(&folder, "folder", "", "target folder id")
	return cmd
}

func (a *app) downloadCmd() *cobra.Command {
	var opts directus.ImageOptions
	cmd := &cobra.Command{
		Use:   "download <id> <output>",
		Short: "Download a file, optionally transformed as an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()

			return a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				var n int64
				var err error
				if !imageRequested(opts) {
					n, err = c.DownloadFile(ctx, args[0], out)
				} else {
					n, err = c.DownloadImage(ctx, args[0], out, opts)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", n, args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Key, "key", "", "storage asset preset key")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "image width")
	cmd.Flags().IntVar(&opts.Height, "height", 0, "image height")
	cmd.Flags().StringVar(&opts.Fit, "fit", "", "cover, contain, inside or outside")
	cmd.Flags().StringVar(&opts.Format, "format", "", "jpg, png, webp or tiff")
	cmd.Flags().IntVar(&opts.Quality, "quality", 0, "image quality 1-100")
	return cmd
}

func imageRequested(o directus.ImageOptions) bool {
	return o.Key != "" || o.Fit != "" || o.Format != "" || o.Width > 0 || o.Height > 0 || o.Quality > 0
}

func (a *app) deleteAllCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-all <collection>",
		Short: "Delete every item of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete all items of %s without --yes", args[0])
			}
			return a.run(cmd, func(ctx context.Context, c *directus.Client) error {
				n, err := c.DeleteAllItems(ctx, args[0])
				if errors.Is(err, directus.ErrNoItems) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already empty\n", args[0])
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d items from %s\n", n, args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}
