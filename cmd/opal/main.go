/*
Copyright 2025 Opal Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command opal is a small REPL over the engine's SELECT core. It loads a
// demo dataset and runs a set of prepared statements, printing results and
// plans, so the executor can be explored without a SQL parser.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/opaldb/opal/internal/config"
	"github.com/opaldb/opal/internal/logger"
	"github.com/opaldb/opal/internal/sql"
	"github.com/opaldb/opal/internal/sql/executor"
	"github.com/opaldb/opal/internal/sql/expr"
	"github.com/opaldb/opal/internal/storage"
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:   "opal",
		Short: "Opal SELECT core demo shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to config file")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type demo struct {
	name  string
	text  string
	build func(session *sql.Session) *executor.Select
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db := sql.NewDatabase(cfg.Settings(), log)
	if err := loadDemoData(db); err != nil {
		return err
	}
	session := sql.NewSession(db)
	demos := demoQueries(db)

	rl, err := readline.New("opal> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("Opal demo shell. Type 'help' for commands.")
	for {
		line, err := rl.Readline()
		if err != nil {
			return nil
		}
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return nil
		case "help":
			printHelp(demos)
		case "list":
			for i, d := range demos {
				fmt.Printf("%2d  %-24s %s\n", i+1, d.name, d.text)
			}
		case "plan", "run":
			if len(fields) != 2 {
				fmt.Println("usage:", fields[0], "<number>")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 1 || n > len(demos) {
				fmt.Println("no such query; see 'list'")
				continue
			}
			if err := execute(session, demos[n-1], fields[0] == "plan"); err != nil {
				color.Red("error: %v", err)
			}
		default:
			fmt.Println("unknown command; type 'help'")
		}
	}
}

func printHelp(demos []demo) {
	fmt.Println("  list        show the prepared demo queries")
	fmt.Println("  run <n>     execute demo query n")
	fmt.Println("  plan <n>    show the plan of demo query n")
	fmt.Println("  quit        leave the shell")
	fmt.Printf("  %d queries available\n", len(demos))
}

func execute(session *sql.Session, d demo, planOnly bool) error {
	stmt := d.build(session)
	if err := stmt.Init(); err != nil {
		return err
	}
	if err := stmt.Prepare(); err != nil {
		return err
	}
	if planOnly {
		printPlan(stmt.PlanSQL())
		return nil
	}
	res, err := stmt.Query(0, nil)
	if err != nil {
		return err
	}
	defer res.Close()
	printResult(res)
	return res.Err()
}

func printPlan(plan string) {
	comment := color.New(color.FgYellow)
	for _, line := range strings.Split(plan, "\n") {
		if strings.Contains(line, "/*") {
			comment.Println(line)
		} else {
			fmt.Println(line)
		}
	}
}

func printResult(res executor.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	header := table.Row{}
	for _, name := range res.ColumnNames() {
		header = append(header, name)
	}
	t.AppendHeader(header)
	count := 0
	for res.Next() {
		row := table.Row{}
		for _, v := range res.Row() {
			if v == nil || v.IsNull() {
				row = append(row, "NULL")
			} else {
				row = append(row, v.AsInterface())
			}
		}
		t.AppendRow(row)
		count++
	}
	t.Render()
	fmt.Printf("%d row(s)\n", count)
}

// loadDemoData creates the ORDERS table with a few indexes and rows.
func loadDemoData(db *sql.Database) error {
	t := storage.NewMemTable(storage.Schema{
		TableName: "ORDERS",
		Columns: []storage.Column{
			{Name: "ID", Type: storage.INTEGER, Visible: true, Selectivity: 100},
			{Name: "CUSTOMER", Type: storage.TEXT, Visible: true, Selectivity: 10},
			{Name: "AMOUNT", Type: storage.INTEGER, Visible: true},
			{Name: "REGION", Type: storage.TEXT, Visible: true, Selectivity: 5},
		},
	})
	if _, err := t.CreateIndex("IDX_ORDERS_CUSTOMER", []string{"CUSTOMER"}, false, nil); err != nil {
		return err
	}
	if _, err := t.CreateIndex("IDX_ORDERS_AMOUNT", []string{"AMOUNT"}, false, nil); err != nil {
		return err
	}
	rows := []struct {
		id       int64
		customer string
		amount   int64
		region   string
	}{
		{1, "acme", 120, "west"},
		{2, "acme", 80, "west"},
		{3, "globex", 200, "east"},
		{4, "globex", 40, "east"},
		{5, "initech", 310, "west"},
		{6, "initech", 90, "east"},
		{7, "acme", 150, "east"},
	}
	for _, r := range rows {
		err := t.Insert(storage.Row{
			storage.NewIntegerValue(r.id),
			storage.NewTextValue(r.customer),
			storage.NewIntegerValue(r.amount),
			storage.NewTextValue(r.region),
		})
		if err != nil {
			return err
		}
	}
	db.AddTable(t)
	return nil
}

func demoQueries(db *sql.Database) []demo {
	orders := func(session *sql.Session) *executor.TableFilter {
		return executor.NewTableFilter(session, db.Table("ORDERS"), "")
	}
	return []demo{
		{
			name: "all-orders",
			text: "SELECT * FROM orders",
			build: func(session *sql.Session) *executor.Select {
				s := executor.NewSelect(session)
				s.SetExpressions([]expr.Expression{expr.NewWildcard("", "")})
				s.AddTableFilter(orders(session), true)
				return s
			},
		},
		{
			name: "sum-by-customer",
			text: "SELECT customer, SUM(amount) FROM orders GROUP BY customer ORDER BY customer",
			build: func(session *sql.Session) *executor.Select {
				s := executor.NewSelect(session)
				s.SetExpressions([]expr.Expression{
					expr.NewColumn("", "", "CUSTOMER"),
					expr.Sum(expr.NewColumn("", "", "AMOUNT")),
				})
				s.AddTableFilter(orders(session), true)
				s.SetGroupBy([]expr.Expression{expr.NewColumn("", "", "CUSTOMER")})
				s.SetOrder([]executor.OrderEntry{{Expr: expr.Int(1)}})
				return s
			},
		},
		{
			name: "count-all",
			text: "SELECT COUNT(*) FROM orders",
			build: func(session *sql.Session) *executor.Select {
				s := executor.NewSelect(session)
				s.SetExpressions([]expr.Expression{expr.CountAll()})
				s.AddTableFilter(orders(session), true)
				return s
			},
		},
		{
			name: "distinct-customers",
			text: "SELECT DISTINCT customer FROM orders",
			build: func(session *sql.Session) *executor.Select {
				s := executor.NewSelect(session)
				s.SetDistinct()
				s.SetExpressions([]expr.Expression{expr.NewColumn("", "", "CUSTOMER")})
				s.AddTableFilter(orders(session), true)
				return s
			},
		},
		{
			name: "top-amounts",
			text: "SELECT id, amount FROM orders ORDER BY amount DESC FETCH NEXT 3 ROWS ONLY",
			build: func(session *sql.Session) *executor.Select {
				s := executor.NewSelect(session)
				s.SetExpressions([]expr.Expression{
					expr.NewColumn("", "", "ID"),
					expr.NewColumn("", "", "AMOUNT"),
				})
				s.AddTableFilter(orders(session), true)
				s.SetOrder([]executor.OrderEntry{
					{Expr: expr.NewColumn("", "", "AMOUNT"), SortType: storage.Descending},
				})
				s.SetLimit(expr.Int(3))
				return s
			},
		},
		{
			name: "big-west-orders",
			text: "SELECT id, customer FROM orders WHERE amount > 100 AND region = 'west'",
			build: func(session *sql.Session) *executor.Select {
				s := executor.NewSelect(session)
				s.SetExpressions([]expr.Expression{
					expr.NewColumn("", "", "ID"),
					expr.NewColumn("", "", "CUSTOMER"),
				})
				s.AddTableFilter(orders(session), true)
				s.AddCondition(expr.NewComparison(expr.OpGreater,
					expr.NewColumn("", "", "AMOUNT"), expr.Int(100)))
				s.AddCondition(expr.NewComparison(expr.OpEqual,
					expr.NewColumn("", "", "REGION"), expr.Str("west")))
				return s
			},
		},
		{
			name: "having-sum",
			text: "SELECT region, SUM(amount) FROM orders GROUP BY region HAVING SUM(amount) > 400",
			build: func(session *sql.Session) *executor.Select {
				s := executor.NewSelect(session)
				s.SetExpressions([]expr.Expression{
					expr.NewColumn("", "", "REGION"),
					expr.Sum(expr.NewColumn("", "", "AMOUNT")),
				})
				s.AddTableFilter(orders(session), true)
				s.SetGroupBy([]expr.Expression{expr.NewColumn("", "", "REGION")})
				s.SetHaving(expr.NewComparison(expr.OpGreater,
					expr.Sum(expr.NewColumn("", "", "AMOUNT")), expr.Int(400)))
				return s
			},
		},
	}
}
