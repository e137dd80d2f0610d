package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	memcache "github.com/pior/memcache-text"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "0.1.0"

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "memcache-cli",
		Short: "memcached text protocol client",
		Long: fmt.Sprintf(`memcache-cli (v%s)

Runs item, counter and server commands against memcached servers.
Flags can also be set with MEMCACHE_* environment variables or in .env files.`, version),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: a.teardown,
	}

	setupClientFlags(root)
	root.AddCommand(operationCommands(a)...)
	root.AddCommand(shellCmd(a), benchCmd(a))
	return root
}

// operationCommands returns a fresh set of the commands that run one
// client operation each.
func operationCommands(a *app) []*cobra.Command {
	return []*cobra.Command{
		getCmd(a, false),
		getCmd(a, true),
		mgetCmd(a),
		storeCmd(a, "set", "Stores a value", (*memcache.Client).SetByKey),
		storeCmd(a, "add", "Stores a value if the key does not exist", (*memcache.Client).AddByKey),
		storeCmd(a, "replace", "Stores a value if the key exists", (*memcache.Client).ReplaceByKey),
		concatCmd(a, "append", "Appends to an existing value", (*memcache.Client).AppendByKey),
		concatCmd(a, "prepend", "Prepends to an existing value", (*memcache.Client).PrependByKey),
		casCmd(a),
		deleteCmd(a),
		counterCmd(a, "incr", "Increments a counter", (*memcache.Client).IncrementByKey),
		counterCmd(a, "decr", "Decrements a counter", (*memcache.Client).DecrementByKey),
		touchCmd(a),
		flushCmd(a),
		statsCmd(a),
		versionCmd(a),
		keysCmd(a),
	}
}

func printResult(w io.Writer, res memcache.Result) {
	fmt.Fprintln(w, res)
}

func printItem(w io.Writer, item memcache.Item) {
	if !item.Found() {
		fmt.Fprintf(w, "%s: %s\n", item.Key, item.Result)
		return
	}

	fmt.Fprintf(w, "%s = %s", item.Key, formatValue(item))
	if item.UserFlags != 0 {
		fmt.Fprintf(w, " flags=%d", item.UserFlags)
	}
	if item.HasCAS {
		fmt.Fprintf(w, " cas=%d", item.CAS)
	}
	fmt.Fprintln(w)
}

func formatValue(item memcache.Item) string {
	if item.Value.IsScalar() {
		return strconv.Quote(item.Value.Text())
	}
	out, err := json.Marshal(item.Value.Interface())
	if err != nil {
		return fmt.Sprintf("%v", item.Value.Interface())
	}
	return string(out)
}

// parseValue converts a command line value to the type named by typ.
func parseValue(raw, typ string) (any, error) {
	switch typ {
	case "string", "":
		return raw, nil
	case "int":
		return strconv.ParseInt(raw, 10, 64)
	case "float":
		return strconv.ParseFloat(raw, 64)
	case "bool":
		return strconv.ParseBool(raw)
	case "json":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid json value: %w", err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown value type %q", typ)
}

func parseTTL(args []string, i int) (int64, error) {
	if len(args) <= i {
		return memcache.NoTTL, nil
	}
	ttl, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ttl must be a number: %w", err)
	}
	return ttl, nil
}

func getCmd(a *app, withCAS bool) *cobra.Command {
	use, short, flags := "get [key]", "Reads the value of a key", memcache.GetFlags(0)
	if withCAS {
		use, short, flags = "gets [key]", "Reads the value and CAS token of a key", memcache.WithCAS
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := a.client.GetByKey(cmd.Context(), a.serverKey(), args[0], nil, flags)
			if err != nil {
				return err
			}
			printItem(cmd.OutOrStdout(), item)
			return nil
		},
	}
}

func mgetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mget [key...]",
		Short: "Reads several keys in one request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var flags memcache.GetFlags
			if ordered, _ := cmd.Flags().GetBool("ordered"); ordered {
				flags |= memcache.PreserveOrder
			}
			if cas, _ := cmd.Flags().GetBool("cas"); cas {
				flags |= memcache.WithCAS
			}

			items, err := a.client.GetMultiByKey(cmd.Context(), a.serverKey(), args, flags)
			if err != nil {
				return err
			}
			for _, item := range items {
				printItem(cmd.OutOrStdout(), item)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d found\n", len(items), len(args))
			return nil
		},
	}
	cmd.Flags().Bool("ordered", false, wrapString("Print items in the order of the keys"))
	cmd.Flags().Bool("cas", false, wrapString("Fetch CAS tokens"))
	return cmd
}

type storeFunc func(c *memcache.Client, ctx context.Context, serverKey, key string, value any, expiration int64) (memcache.Result, error)

func storeCmd(a *app, name, short string, store storeFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " [key] [value] [ttl]",
		Short: short,
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := valueFromFlags(cmd, args[1])
			if err != nil {
				return err
			}
			ttl, err := parseTTL(args, 2)
			if err != nil {
				return err
			}

			res, err := store(a.client, cmd.Context(), a.serverKey(), args[0], value, ttl)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	addValueFlags(cmd)
	return cmd
}

func addValueFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "string", wrapString("Type of the value (string, int, float, bool, json)"))
	cmd.Flags().Uint16("flags", 0, wrapString("User flags stored with the value"))
}

func valueFromFlags(cmd *cobra.Command, raw string) (any, error) {
	typ, _ := cmd.Flags().GetString("type")
	value, err := parseValue(raw, typ)
	if err != nil {
		return nil, err
	}
	if flags, _ := cmd.Flags().GetUint16("flags"); flags != 0 {
		value = memcache.Flagged{Value: value, Flags: flags}
	}
	return value, nil
}

type concatFunc func(c *memcache.Client, ctx context.Context, serverKey, key string, value any) (memcache.Result, error)

func concatCmd(a *app, name, short string, concat concatFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [key] [value]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := concat(a.client, cmd.Context(), a.serverKey(), args[0], args[1])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func casCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cas [token] [key] [value] [ttl]",
		Short: "Stores a value if the CAS token still matches",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("token must be a number: %w", err)
			}
			value, err := valueFromFlags(cmd, args[2])
			if err != nil {
				return err
			}
			ttl, err := parseTTL(args, 3)
			if err != nil {
				return err
			}

			res, err := a.client.CasByKey(cmd.Context(), token, a.serverKey(), args[1], value, ttl)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	addValueFlags(cmd)
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete [key...]",
		Aliases: []string{"del"},
		Short:   "Deletes keys",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				res, err := a.client.DeleteByKey(cmd.Context(), a.serverKey(), args[0])
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			}

			results, aggregate, err := a.client.DeleteMultiByKey(cmd.Context(), a.serverKey(), args)
			for _, key := range args {
				if res, ok := results[key]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, res)
				}
			}
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), aggregate)
			return nil
		},
	}
}

type counterFunc func(c *memcache.Client, ctx context.Context, serverKey, key string, offset, initialValue uint64, expiration int64) (memcache.Counter, error)

func counterCmd(a *app, name, short string, counter counterFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " [key] [offset]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset := uint64(1)
			if len(args) == 2 {
				var err error
				if offset, err = strconv.ParseUint(args[1], 10, 64); err != nil {
					return fmt.Errorf("offset must be a number: %w", err)
				}
			}
			initial, _ := cmd.Flags().GetUint64("initial")
			ttl, _ := cmd.Flags().GetInt64("ttl")

			res, err := counter(a.client, cmd.Context(), a.serverKey(), args[0], offset, initial, ttl)
			if err != nil {
				return err
			}
			if !res.OK() {
				printResult(cmd.OutOrStdout(), res.Result)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Value)
			return nil
		},
	}
	cmd.Flags().Uint64("initial", 0, wrapString("Value stored when the counter does not exist"))
	cmd.Flags().Int64("ttl", 0, wrapString("Expiration of a newly created counter, in seconds"))
	return cmd
}

func touchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "touch [key] [ttl]",
		Short: "Sets a new expiration on a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := parseTTL(args, 1)
			if err != nil {
				return err
			}
			res, err := a.client.TouchByKey(cmd.Context(), a.serverKey(), args[0], ttl)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func flushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flush [delay]",
		Short: "Invalidates every item on every server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delay := 0
			if len(args) == 1 {
				var err error
				if delay, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("delay must be a number: %w", err)
				}
			}
			res, err := a.client.Flush(cmd.Context(), delay)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [group]",
		Short: "Prints server statistics (optionally a group: items, slabs, settings)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group := ""
			if len(args) == 1 {
				group = args[0]
			}
			stats, err := a.client.GetStatsArg(cmd.Context(), group)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, srv := range a.client.ServerList() {
				fmt.Fprintf(w, "%s\n", srv.Key())
				server := stats[srv.Key()]
				names := make([]string, 0, len(server))
				for name := range server {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(w, "  %s %s\n", name, server[name])
				}
			}

			clientStats := a.client.Stats()
			a.logger.Debug("client stats", zap.Any("stats", clientStats))
			return nil
		},
	}
}

func versionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the version of every server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := a.client.GetVersion(cmd.Context())
			if err != nil {
				return err
			}
			for _, srv := range a.client.ServerList() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", srv.Key(), versions[srv.Key()])
			}
			return nil
		},
	}
}

func keysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Lists the keys stored on every server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := a.client.GetAllKeys(cmd.Context())
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}
