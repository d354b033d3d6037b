// Command taxcalc prints the income tax due on a gross salary.
//
//	taxcalc [flags] <year> <gross>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"taxcalc/internal/amqp"
	"taxcalc/internal/cli"
	"taxcalc/internal/config"
	"taxcalc/internal/core"
	"taxcalc/internal/log"
	"taxcalc/internal/report"
	"taxcalc/internal/services"
	"taxcalc/internal/storage"
	"taxcalc/internal/tax"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	cli.LoadEnvFile()
	os.Exit(run(context.Background(), os.Args[1:], config.Load(), os.Stdout, os.Stderr))
}

type options struct {
	schedules string
	format    string
	pdf       string
	record    bool
	enqueue   bool
	years     bool
}

func run(ctx context.Context, args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("taxcalc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: taxcalc [flags] <year> <gross>")
		fs.PrintDefaults()
	}

	var opts options
	fs.StringVar(&opts.schedules, "schedules", cfg.SchedulesFile, "YAML file of tax bands per year (default: built-in table)")
	fs.StringVar(&opts.format, "format", "text", "output format: text or json")
	fs.StringVar(&opts.pdf, "pdf", "", "also write a PDF breakdown to this file")
	fs.BoolVar(&opts.record, "record", false, "record the calculation in the SQLite history")
	fs.BoolVar(&opts.enqueue, "enqueue", false, "queue the calculation for the worker instead of computing it")
	fs.BoolVar(&opts.years, "years", false, "list the available tax years and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if opts.format != "text" && opts.format != "json" {
		fmt.Fprintf(stderr, "invalid value %q for flag -format: must be text or json\n", opts.format)
		fs.Usage()
		return exitUsage
	}

	logger, err := cli.SetupLogger(cfg.LogLevel, log.ComponentCLI, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	table, err := cli.LoadSchedules(opts.schedules)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	if opts.years {
		for _, y := range table.Years() {
			fmt.Fprintf(stdout, "%d (%s)\n", y, report.TaxYear(y))
		}
		return exitOK
	}

	year, gross, err := positional(fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	var calcOpts []services.Option
	if opts.enqueue {
		if cfg.AMQPURL == "" {
			fmt.Fprintln(stderr, "-enqueue needs AMQP_URL to be set")
			return exitError
		}
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		defer client.Close()
		calcOpts = append(calcOpts, services.WithPublisher(client))
	}
	if opts.record {
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		defer repo.Close()
		calcOpts = append(calcOpts, services.WithHistory(repo))
	}
	calc := services.NewCalculator(table, logger, calcOpts...)

	if opts.enqueue {
		id, err := calc.Enqueue(ctx, year, gross)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		fmt.Fprintf(stdout, "Queued calculation request %s\n", id)
		return exitOK
	}

	var result tax.Calculation
	if opts.record {
		result, err = calc.Record(ctx, year, gross)
	} else {
		result, err = calc.Compute(ctx, year, gross)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	if opts.format == "json" {
		err = report.WriteJSON(stdout, result)
	} else {
		err = report.WriteText(stdout, result)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	if opts.pdf != "" {
		if err := writePDF(opts.pdf, result); err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		logger.Info("PDF written", "path", opts.pdf, log.FieldOperation, log.OpRender)
	}
	return exitOK
}

func positional(args []string) (int, core.Money, error) {
	if len(args) < 1 {
		return 0, core.Money{}, errors.New("missing required positional argument: year")
	}
	if len(args) < 2 {
		return 0, core.Money{}, errors.New("missing required positional argument: gross income")
	}
	if len(args) > 2 {
		return 0, core.Money{}, fmt.Errorf("unexpected arguments: %s", strings.Join(args[2:], " "))
	}

	year, err := strconv.Atoi(args[0])
	if err != nil || year <= 0 {
		return 0, core.Money{}, fmt.Errorf("argument year is not a valid number: %s", args[0])
	}
	gross, err := core.Parse(args[1])
	if err != nil {
		return 0, core.Money{}, fmt.Errorf("argument gross income is not a valid amount: %w", err)
	}
	return year, gross, nil
}

func writePDF(path string, c tax.Calculation) error {
	data, err := report.PDF(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
