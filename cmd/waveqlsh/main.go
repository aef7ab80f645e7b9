// Command waveqlsh opens a WaveQL connection string and runs one query
// against it, printing the result rows. It registers only the "file"
// scheme; DSNs naming any other scheme (servicenow, jira, rest) fail to
// open with a "no adapter registered" error.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/adapter/file"
	"github.com/mitayan0/WaveQL/waveql"
)

func main() {
	dsn := flag.String("dsn", "", `connection string, e.g. "file:///data/account.csv?table=account"`)
	query := flag.String("query", "", "SQL to run")
	flag.Parse()

	log := logrus.StandardLogger()

	if *dsn == "" || *query == "" {
		fmt.Fprintln(os.Stderr, "usage: waveqlsh -dsn <connection-string> -query <sql>")
		os.Exit(2)
	}

	registerFileAdapter()

	db, err := sql.Open("waveql", *dsn)
	must(log, err)
	defer db.Close()

	rows, err := db.Query(*query)
	must(log, err)
	defer rows.Close()

	must(log, dump(rows))
}

// registerFileAdapter wires the "file" DSN scheme to a single-table file
// adapter: file:///path/to/data.csv?table=<name>&format=csv|json.
func registerFileAdapter() {
	waveql.RegisterAdapter("file", func(dsn *waveql.DSN) (adapter.Adapter, error) {
		table := dsn.Params["table"]
		if table == "" {
			table = "data"
		}
		format := file.FormatCSV
		if strings.EqualFold(dsn.Params["format"], "json") {
			format = file.FormatJSON
		}
		return file.New(file.Config{
			Name: "file",
			Tables: map[string]file.TableConfig{
				table: {Path: dsn.Path, Format: format, HasHeader: true},
			},
		}, nil, nil)
	})
}

func must(log logrus.FieldLogger, err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func dump(rows *sql.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(cols, "\t"))

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = fmt.Sprint(v)
		}
		fmt.Println(strings.Join(parts, "\t"))
	}
	return rows.Err()
}
