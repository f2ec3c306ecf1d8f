package main // import "go.mercari.io/dataset/cmd/dsctl"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"go.mercari.io/dataset"
	"go.mercari.io/dataset/dsmiddleware/dslog"
	"google.golang.org/api/iterator"
)

const usage = `usage: dsctl [flags] <command> [args]

commands:
  lookup KIND ID_OR_NAME...   print the entities stored under the keys
  query KIND [LIMIT]          print the entities of KIND
  allocate KIND COUNT         allocate COUNT ids for KIND
  delete KIND ID_OR_NAME...   delete the entities stored under the keys

flags:
`

var commands = map[string]func(ctx context.Context, ds *dataset.Dataset, w io.Writer, args []string) error{
	"lookup":   lookup,
	"query":    query,
	"allocate": allocate,
	"delete":   deleteKeys,
}

// namespace applies to every key and query built from the command line.
var namespace string

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

// realMain returns 2 on usage errors and 1 when the command fails.
func realMain(argv []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "dsctl: ", 0)

	fs := flag.NewFlagSet("dsctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	projectID := fs.String("project", "", "project id; resolved from the environment when empty")
	emulator := fs.String("emulator", "", "emulator host; DATASTORE_EMULATOR_HOST when empty")
	fs.StringVar(&namespace, "namespace", "", "namespace of keys and queries")
	verbose := fs.Bool("v", false, "log every RPC")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	args := fs.Args()
	if len(args) < 2 {
		fs.Usage()
		return 2
	}
	if _, ok := commands[args[0]]; !ok {
		logger.Printf("unknown command %q", args[0])
		fs.Usage()
		return 2
	}

	ctx := context.Background()
	logf := func(ctx context.Context, format string, args ...interface{}) {
		logger.Printf(format, args...)
	}

	opts := []dataset.ClientOption{dataset.WithProjectID(*projectID)}
	if *emulator != "" {
		opts = append(opts, dataset.WithEmulatorHost(*emulator))
	}
	if *verbose {
		opts = append(opts, dataset.WithLogf(logf))
	}
	ds, err := dataset.New(ctx, opts...)
	if err != nil {
		logger.Print(err)
		return 1
	}
	defer ds.Close()
	if *verbose {
		ds.AppendMiddleware(dslog.NewLogger("rpc: ", logf))
	}

	if err := run(ctx, ds, stdout, args[0], args[1:]); err != nil {
		logger.Print(err)
		return 1
	}
	return 0
}

func run(ctx context.Context, ds *dataset.Dataset, w io.Writer, command string, args []string) error {
	cmd, ok := commands[command]
	if !ok {
		return fmt.Errorf("unknown command %q", command)
	}
	return cmd(ctx, ds, w, args)
}

// parseKeys builds one key of kind per id or name in args[1:].
// An argument that parses as an integer is an id.
func parseKeys(args []string) ([]*dataset.Key, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("KIND and at least one ID_OR_NAME are required")
	}

	keys := make([]*dataset.Key, 0, len(args)-1)
	for _, s := range args[1:] {
		var key *dataset.Key
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			key = dataset.IDKey(args[0], id, nil)
		} else {
			key = dataset.NameKey(args[0], s, nil)
		}
		if err := key.SetNamespace(namespace); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func lookup(ctx context.Context, ds *dataset.Dataset, w io.Writer, args []string) error {
	keys, err := parseKeys(args)
	if err != nil {
		return err
	}

	res, err := ds.FindAll(ctx, keys...)
	for err == nil {
		for _, e := range res.Entities {
			printEntity(w, e)
		}
		for _, e := range res.Missing {
			fmt.Fprintf(w, "%s missing\n", e.Key())
		}
		res, err = res.Next(ctx)
	}
	if err != iterator.Done {
		return err
	}
	return nil
}

func query(ctx context.Context, ds *dataset.Dataset, w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("KIND is required")
	}

	q := ds.Query(args[0])
	if len(args) > 1 {
		limit, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid LIMIT %q", args[1])
		}
		q.Limit(limit)
	}

	it := ds.Iterate(ctx, q, dataset.InNamespace(namespace))
	for {
		e, err := it.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			return err
		}
		printEntity(w, e)
	}

	c, err := it.Cursor()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "cursor: %s\n", c)
	return nil
}

func allocate(ctx context.Context, ds *dataset.Dataset, w io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("KIND and COUNT are required")
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid COUNT %q", args[1])
	}

	key := dataset.IncompleteKey(args[0], nil)
	if err := key.SetNamespace(namespace); err != nil {
		return err
	}
	keys, err := ds.AllocateIDs(ctx, key, count)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(w, k)
	}
	return nil
}

func deleteKeys(ctx context.Context, ds *dataset.Dataset, w io.Writer, args []string) error {
	keys, err := parseKeys(args)
	if err != nil {
		return err
	}

	holders := make([]dataset.KeyHolder, 0, len(keys))
	for _, k := range keys {
		holders = append(holders, k)
	}
	if err := ds.Delete(ctx, holders...); err != nil {
		return err
	}
	fmt.Fprintf(w, "deleted %d\n", len(keys))
	return nil
}

func printEntity(w io.Writer, e *dataset.Entity) {
	props := make([]string, 0, e.Len())
	for _, name := range e.Names() {
		v, _ := e.Get(name)
		props = append(props, fmt.Sprintf("%s=%v", name, v))
	}
	fmt.Fprintf(w, "%s {%s}\n", e.Key(), strings.Join(props, ", "))
}
