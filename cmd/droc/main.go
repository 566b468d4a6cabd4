// Command droc plans one request given as a JSON argument and prints the
// result as JSON on stdout.
//
//	droc '{"depot":"12.97,77.59","waypoints":[...],"distances":[...],
//	       "num_clusters":3,"min_per_cluster":5,"max_per_cluster":12}'
//
// With -csv the waypoints come from an orders export instead:
//
//	droc -csv orders.csv -depot 17.4575,78.3052 -k 4 -max 18
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"time"

	"droc/internal/buildinfo"
	"droc/internal/config"
	"droc/internal/geo"
	"droc/internal/integrations"
	"droc/internal/integrations/csvorders"
	"droc/internal/logging"
	"droc/internal/model"
	"droc/internal/partition"
)

func main() {
	version := flag.Bool("version", false, "print version and exit")
	withStats := flag.Bool("stats", false, "include planner statistics in the output")
	csvPath := flag.String("csv", "", "read waypoints from a CSV orders export")
	depot := flag.String("depot", "", "depot \"lat,lon\" for -csv")
	k := flag.Int("k", 0, "number of clusters for -csv (0 derives it from -max)")
	minSize := flag.Int("min", 0, "minimum waypoints per cluster for -csv")
	maxSize := flag.Int("max", 0, "maximum waypoints per cluster for -csv")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: droc [-stats] '<json payload>'")
		fmt.Fprintln(os.Stderr, "       droc [-stats] -csv FILE -depot LAT,LON -max N [-k N] [-min N]")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *version {
		fmt.Println(buildinfo.String())
		return
	}
	if *csvPath == "" && flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Please pass the JSON payload as the first argument.")
		flag.Usage()
		os.Exit(1)
	}
	if err := execute(*csvPath, *depot, *k, *minSize, *maxSize, *withStats); err != nil {
		fmt.Fprintln(os.Stderr, "droc:", err)
		os.Exit(1)
	}
}

func execute(csvPath, depot string, k, minSize, maxSize int, withStats bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		req model.PlanRequest
		err error
	)
	if csvPath != "" {
		req, err = fromCSV(ctx, csvPath, depot, k, minSize, maxSize)
	} else if err = json.Unmarshal([]byte(flag.Arg(0)), &req); err != nil {
		err = fmt.Errorf("parse payload: %w", err)
	}
	if err != nil {
		return err
	}
	return run(ctx, req, withStats)
}

func fromCSV(ctx context.Context, path, depot string, k, minSize, maxSize int) (model.PlanRequest, error) {
	d, err := geo.ParseCoordinate(depot)
	if err != nil {
		return model.PlanRequest{}, fmt.Errorf("-depot: %w", err)
	}
	src := csvorders.Source{Path: path}
	wps, err := src.FetchWaypoints(ctx)
	if err != nil {
		return model.PlanRequest{}, err
	}
	return integrations.BuildRequest(wps, integrations.Shape{Depot: d, NumClusters: k, MinPerCluster: minSize, MaxPerCluster: maxSize})
}

func run(ctx context.Context, req model.PlanRequest, withStats bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	preq, err := req.ToPartition()
	if err != nil {
		return err
	}

	start := time.Now()
	planner := partition.NewPlanner(cfg.Planner.Oracle(), req.Options(cfg.Planner.PartitionOptions()), logger)
	plan, err := planner.Plan(ctx, preq, nil)
	if err != nil {
		return err
	}
	res := model.FromPlan(plan)
	res.Meta = &model.Meta{RuntimeSeconds: math.Round(time.Since(start).Seconds()*1000) / 1000}
	if !withStats {
		res.Stats = nil
	}
	return json.NewEncoder(os.Stdout).Encode(res)
}
