package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/transitworks/tripassign/internal/assignment"
	"github.com/transitworks/tripassign/internal/pathset"
	"github.com/transitworks/tripassign/internal/scorer"
	"github.com/transitworks/tripassign/internal/statusapi"
	"github.com/transitworks/tripassign/internal/supply"
	"github.com/transitworks/tripassign/internal/txerr"
	"github.com/transitworks/tripassign/internal/vehicleloader"
	"github.com/transitworks/tripassign/internal/workerpool"
)

var rootCmd = &cobra.Command{
	Use:          "tripassign",
	Short:        "Trip-based transit passenger assignment",
	Long:         "Assigns passenger travel requests to scheduled transit trips, enforcing vehicle capacity by bumping.",
	SilenceUsage: true,
}

var (
	stopsPath     string
	tripsPath     string
	stopTimesPath string
	transfersPath string
	accessPath    string
	egressPath    string
	requestsPath  string
	outputDir     string
	statusAddr    string

	iterations       int
	processes        int
	pathfindingMode  string
	pathsFile        string
	pathLinksFile    string
	noSimulation     bool
	noCapacity       bool
	bumpBuffer       float64
	bumpOneAtATime   bool
	timeWindow       float64
	maxNumPaths      int
	minPathProb      float64
	dispersion       float64
	maxStopProcess   int
	pathsetSize      int
	userClassFn      string
	minTransferPen   float64
	overlapScale     float64
	overlapSplit     bool
	overlapVariable  string
	debugNumTrips    int
	debugTraceOnly   bool
	tracePersonIDs   []string
	skipPersonIDs    []string
	prependRouteID   bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&stopsPath, "stops", "stops.csv", "stops feed")
	pf.StringVar(&tripsPath, "trips", "trips.csv", "trips feed")
	pf.StringVar(&stopTimesPath, "stop-times", "stop_times.csv", "stop_times feed")
	pf.StringVar(&transfersPath, "transfers", "", "transfers feed (optional)")
	pf.StringVar(&accessPath, "access", "access.csv", "TAZ access edges")
	pf.StringVar(&egressPath, "egress", "egress.csv", "TAZ egress edges")

	rf := runCmd.Flags()
	rf.StringVar(&requestsPath, "requests", "requests.csv", "passenger trip list")
	rf.StringVar(&outputDir, "output-dir", ".", "where to write vehicle loads and pathset records")
	rf.StringVar(&statusAddr, "status-addr", "", "serve a read-only status endpoint on this address (empty = off)")
	rf.IntVar(&iterations, "iterations", 5, "outer assignment iterations")
	rf.IntVar(&processes, "processes", 0, "worker count (0 = all CPU cores, 1 = no pool)")
	rf.StringVar(&pathfindingMode, "pathfinding", "stochastic", "deterministic, stochastic, or file")
	rf.StringVar(&pathsFile, "paths-file", "", "path records to read when --pathfinding=file")
	rf.StringVar(&pathLinksFile, "path-links-file", "", "link records to read when --pathfinding=file")
	rf.BoolVar(&noSimulation, "no-simulation", false, "skip the inner simulation loop")
	rf.BoolVar(&noCapacity, "no-capacity", false, "disable the capacity constraint")
	rf.Float64Var(&bumpBuffer, "bump-buffer", 5, "bump buffer in minutes")
	rf.BoolVar(&bumpOneAtATime, "bump-one-at-a-time", true, "bump a single earliest stop per pass")
	rf.Float64Var(&timeWindow, "time-window", 30, "board opportunity window in minutes")
	rf.IntVar(&maxNumPaths, "max-num-paths", -1, "pathset truncation (-1 = unbounded)")
	rf.Float64Var(&minPathProb, "min-path-probability", 0.001, "drop paths below this probability")
	rf.Float64Var(&dispersion, "dispersion", 1.0, "stochastic dispersion (theta)")
	rf.IntVar(&maxStopProcess, "max-stop-process-count", -1, "per-stop re-extraction cap (-1 = unbounded)")
	rf.IntVar(&pathsetSize, "pathset-size", 20, "stochastic pathset draws per request")
	rf.StringVar(&userClassFn, "user-class-function", "default", "registered user-class function name")
	rf.Float64Var(&minTransferPen, "min-transfer-penalty", 1, "transfer wait floor in minutes")
	rf.Float64Var(&overlapScale, "overlap-scale", 1, "path-size correction scale")
	rf.BoolVar(&overlapSplit, "overlap-split-transit", false, "count overlap per transit segment")
	rf.StringVar(&overlapVariable, "overlap-variable", "count", "count, distance, or time")
	rf.IntVar(&debugNumTrips, "debug-num-trips", -1, "truncate the trip list (-1 = all)")
	rf.BoolVar(&debugTraceOnly, "debug-trace-only", false, "run only traced persons")
	rf.StringSliceVar(&tracePersonIDs, "trace-person-ids", nil, "person ids to trace")
	rf.StringSliceVar(&skipPersonIDs, "skip-person-ids", nil, "person ids to skip")
	rf.BoolVar(&prependRouteID, "prepend-route-id-to-trip-id", false, "render trip ids as route_trip in output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the assignment loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := supply.New()
		ids, err := supply.LoadCSV(store, stopsPath, tripsPath, stopTimesPath, transfersPath)
		if err != nil {
			return err
		}
		if err := supply.LoadAccessEgressCSV(store, ids, accessPath, egressPath); err != nil {
			return err
		}
		requests, err := supply.LoadRequestsCSV(ids, requestsPath)
		if err != nil {
			return err
		}

		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		store.InitializeParameters(supply.SearchParams{
			TimeWindowMin:       cfg.TimeWindowMin,
			BumpBufferMin:       cfg.BumpBufferMin,
			PathsetSize:         cfg.StochasticPathsetSize,
			Dispersion:          cfg.StochasticDispersion,
			MaxStopProcessCount: cfg.StochasticMaxStopProcess,
			MaxNumPaths:         cfg.MaxNumPaths,
			MinPathProbability:  cfg.MinPathProbability,
		})

		registry := scorer.NewRegistry()
		if _, ok := registry.Lookup(cfg.UserClassFunction); !ok {
			return txerr.Configuration(fmt.Sprintf("unknown user-class function %q", cfg.UserClassFunction), nil)
		}

		var status *statusapi.Server
		if statusAddr != "" {
			status = statusapi.New()
			go func() {
				if err := http.ListenAndServe(statusAddr, status); err != nil {
					fmt.Fprintf(os.Stderr, "status endpoint: %v\n", err)
				}
			}()
		}

		requests = assignment.FilterRequests(cfg, requests)
		driver := assignment.NewDriver(store, registry, workerpool.New(cfg.NumberOfProcesses), cfg)
		summary, err := driver.Run(ctx, requests)
		if err != nil {
			return err
		}
		if status != nil {
			status.SetSummary(summary)
		}

		assignment.PrintSummary(os.Stdout, summary)

		loadsPath := filepath.Join(outputDir, "vehicle_loads.csv")
		lastIter := len(summary.Iterations)
		if err := vehicleloader.WriteCSV(loadsPath, lastIter, summary.Profiles, cfg.PrependRouteIDToTripID); err != nil {
			return err
		}
		return pathset.WriteRecords(
			filepath.Join(outputDir, "paths.csv"),
			filepath.Join(outputDir, "path_links.csv"),
			summary.PathSets,
		)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load a schedule feed and check its supply invariants",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := supply.New()
		if _, err := supply.LoadCSV(store, stopsPath, tripsPath, stopTimesPath, transfersPath); err != nil {
			return err
		}
		fmt.Println("supply ok")
		return nil
	},
}

func buildConfig() (assignment.Config, error) {
	cfg := assignment.DefaultConfig()
	cfg.Iterations = iterations
	cfg.Simulation = !noSimulation
	cfg.NumberOfProcesses = processes
	cfg.BumpBufferMin = bumpBuffer
	cfg.BumpOneAtATime = bumpOneAtATime
	cfg.CapacityConstraint = !noCapacity
	cfg.DebugTraceOnly = debugTraceOnly
	cfg.DebugNumTrips = debugNumTrips
	cfg.TracePersonIDs = tracePersonIDs
	cfg.SkipPersonIDs = skipPersonIDs
	cfg.PrependRouteIDToTripID = prependRouteID
	cfg.TimeWindowMin = timeWindow
	cfg.MaxNumPaths = maxNumPaths
	cfg.MinPathProbability = minPathProb
	cfg.StochasticDispersion = dispersion
	cfg.StochasticMaxStopProcess = maxStopProcess
	cfg.StochasticPathsetSize = pathsetSize
	cfg.UserClassFunction = userClassFn
	cfg.MinTransferPenalty = minTransferPen
	cfg.OverlapScaleParameter = overlapScale
	cfg.OverlapSplitTransit = overlapSplit
	cfg.PathsFile = pathsFile
	cfg.PathLinksFile = pathLinksFile

	switch overlapVariable {
	case "count":
		cfg.OverlapVariable = scorer.OverlapCount
	case "distance":
		cfg.OverlapVariable = scorer.OverlapDistance
	case "time":
		cfg.OverlapVariable = scorer.OverlapTime
	default:
		return cfg, txerr.Configuration(fmt.Sprintf("unknown overlap variable %q", overlapVariable), nil)
	}

	switch pathfindingMode {
	case "deterministic":
		cfg.PathfindingType = assignment.Deterministic
	case "stochastic":
		cfg.PathfindingType = assignment.Stochastic
	case "file":
		cfg.PathfindingType = assignment.FromFile
		if pathsFile == "" || pathLinksFile == "" {
			return cfg, txerr.Configuration("--pathfinding=file requires --paths-file and --path-links-file", nil)
		}
	default:
		return cfg, txerr.Configuration(fmt.Sprintf("unknown pathfinding type %q", pathfindingMode), nil)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(txerr.ExitCode(err))
	}
}
