/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/suparena/genericstore"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

// request builds the addressed Request from the table and key flags.
func (c *cli) request() (genericstore.Request, error) {
	table := c.v.GetString("table")
	if table == "" {
		return genericstore.Request{}, errors.Configurationf("cli", "--table is required")
	}
	q := storagemodels.NewQuery(table)
	if key := c.v.GetString("key"); key != "" {
		q = q.WithKey(key, c.v.GetString("key-value"))
	}
	if subkey := c.v.GetString("subkey"); subkey != "" {
		q = q.WithSubkey(subkey, c.v.GetString("subkey-value"))
	}
	return c.store.On(q), nil
}

// readArg returns arg, or standard input when arg is "-".
func readArg(arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(os.Stdin)
	}
	return []byte(arg), nil
}

// decodeJSON decodes a JSON argument keeping numbers exact.
func decodeJSON(arg string, into any) error {
	data, err := readArg(arg)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(into); err != nil {
		return errors.Operation("cli", fmt.Errorf("invalid JSON argument: %w", err)).AsPermanent()
	}
	return nil
}

func decodeRecord(arg string) (storagemodels.Record, error) {
	var rec storagemodels.Record
	if err := decodeJSON(arg, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	return enc.Encode(v)
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Read one record from the primary provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := c.request()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			rec, err := r.Get(ctx)
			if err != nil {
				return err
			}
			return c.print(rec)
		},
	}
}

func (c *cli) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put [record-json|-]",
		Short: "Create or replace a record on every provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.write(cmd, args[0], genericstore.Request.Put)
		},
	}
}

func (c *cli) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [fields-json|-]",
		Short: "Update fields of a record on every provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.write(cmd, args[0], genericstore.Request.Update)
		},
	}
}

func (c *cli) write(cmd *cobra.Command, arg string, op func(genericstore.Request, context.Context, storagemodels.Record) error) error {
	r, err := c.request()
	if err != nil {
		return err
	}
	rec, err := decodeRecord(arg)
	if err != nil {
		return err
	}
	ctx, cancel := c.context(cmd)
	defer cancel()
	return op(r, ctx, rec)
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete a record from every provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := c.request()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			return r.Delete(ctx)
		},
	}
}

func (c *cli) scanCmd() *cobra.Command {
	return c.searchCmd("scan", "Filter a whole table on the primary provider", genericstore.Request.Scan)
}

func (c *cli) queryCmd() *cobra.Command {
	return c.searchCmd("query", "Query a key range on the primary provider", genericstore.Request.Query)
}

type searchFunc func(genericstore.Request, context.Context, storagemodels.Conditions, ...string) (datastore.ResultSet, error)

// searchCmd prints matching records as JSON lines.
func (c *cli) searchCmd(use, short string, search searchFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " [conditions-json|-]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.request()
			if err != nil {
				return err
			}
			var conds storagemodels.Conditions
			if len(args) == 1 {
				if err := decodeJSON(args[0], &conds); err != nil {
					return err
				}
			}
			fields, _ := cmd.Flags().GetStringSlice("fields")
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := c.context(cmd)
			defer cancel()
			rs, err := search(r, ctx, conds, fields...)
			if err != nil {
				return err
			}
			for n := 0; limit <= 0 || n < limit; n++ {
				ok, err := rs.HasNext(ctx)
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				rec, err := rs.Next(ctx)
				if err != nil {
					return err
				}
				if err := c.print(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("fields", nil, "fields to return (default all)")
	cmd.Flags().Int("limit", 0, "stop after this many records (0 for no limit)")
	return cmd
}

func (c *cli) batchGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch-get [conditions-json|-]",
		Short: "Read many records from the primary provider",
		Long: `Reads a JSON array of {"table", "key", "subkey", "data"} conditions and
prints the found records grouped by table.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var conds []storagemodels.BatchCondition
			if err := decodeJSON(args[0], &conds); err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			out, err := c.store.BatchGet(ctx, conds)
			if err != nil {
				return err
			}
			return c.print(out)
		},
	}
}

func (c *cli) batchWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch-write [intents-json|-]",
		Short: "Apply many writes to the primary provider",
		Long: `Reads a JSON array of {"action", "table", "key", "subkey", "data"} intents.
Batch writes go to the primary provider only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var intents []storagemodels.WriteIntent
			if err := decodeJSON(args[0], &intents); err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			if err := c.store.BatchWrite(ctx, intents); err != nil {
				return err
			}
			_, err := fmt.Fprintf(c.out, "%d writes applied\n", len(intents))
			return err
		},
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version and the linked providers",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"store": "none"},
		RunE: func(*cobra.Command, []string) error {
			info := genericstore.GetVersionInfo()
			_, err := fmt.Fprintf(c.out, "genericstore v%s (commit %s, built %s)\nproviders: %s\n",
				info.Version, info.GitCommit, info.BuildDate, strings.Join(info.Providers, ", "))
			return err
		},
	}
}
