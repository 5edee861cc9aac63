// Command sirsectl inspects and drives the SIRSE poller state from a shell.
// When a watcher daemon answers on its control API, state-changing commands
// go through it; otherwise sirsectl works on the shared state store itself.
//
// Usage:
//
//	sirsectl status
//	sirsectl check --lat 20.14 --lon -98.339
//	sirsectl nearby --lat 20.14 --lon -98.339 --radius 2
//	sirsectl reset
//	sirsectl config enable
//	sirsectl config interval 5
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cerberusteck/sirse-watch/internal/app"
	"github.com/cerberusteck/sirse-watch/internal/config"
	"github.com/cerberusteck/sirse-watch/internal/geo"
	"github.com/cerberusteck/sirse-watch/internal/lifecycle"
	"github.com/cerberusteck/sirse-watch/internal/report"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

var (
	watcherURL string
	forceLocal bool
)

var errNoLocation = errors.New("no location: pass --lat/--lon or set HOME_LATITUDE/HOME_LONGITUDE")

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "sirsectl",
		Short:        "SIRSE poller control CLI",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&watcherURL, "watcher", "", "Watcher control API URL (default SIRSE_WATCH_URL or http://localhost:API_PORT)")
	root.PersistentFlags().BoolVar(&forceLocal, "local", false, "Work on the state store directly even if a watcher is running")

	root.AddCommand(statusCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(nearbyCmd())
	root.AddCommand(resetCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// status / check / nearby / reset
// --------------------------------------------------------------------------

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show polling configuration and seen-set size",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(
				func(ctx context.Context, c *watcherClient) error {
					st, err := c.status(ctx)
					if err != nil {
						return err
					}
					return printJSON(st)
				},
				func(ctx context.Context, a *app.App) error {
					return printJSON(a.Controller.Status())
				},
			)
		},
	}
}

func checkCmd() *cobra.Command {
	var loc locationFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one check now, notifying about new nearby reports",
		Long: "Run one check now, notifying about new nearby reports.\n" +
			"With a running watcher, --lat/--lon update the watcher's location.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(
				func(ctx context.Context, c *watcherClient) error {
					var st lifecycle.Status
					var err error
					if loc.set() {
						st, err = c.setLocation(ctx, loc.point())
					} else {
						st, err = c.status(ctx)
					}
					if err != nil {
						return err
					}
					if st.Location == nil {
						return errNoLocation
					}
					res, err := c.check(ctx)
					if isCheckTimeout(err) {
						fmt.Println("The check is still running in the watcher; new reports will be notified there")
						return nil
					}
					if err != nil {
						return fmt.Errorf("check: %w", err)
					}
					printCheck(res.NewReports, res.SeenCount, *st.Location)
					return nil
				},
				func(ctx context.Context, a *app.App) error {
					if err := loc.apply(ctx, a); err != nil {
						return err
					}

					var mu sync.Mutex
					var found []report.Report
					a.Controller.SetListener(func(reports []report.Report) {
						mu.Lock()
						found = append(found, reports...)
						mu.Unlock()
					})

					res, err := a.Controller.CheckNow(ctx)
					if res.Outcome == lifecycle.OutcomeTimeout {
						// The tick keeps running; let it finish so its writes
						// land and its reports can be shown.
						fmt.Fprintln(os.Stderr, "The check is taking longer than expected, waiting for it")
						if err := a.Engine.Wait(ctx); err != nil {
							return fmt.Errorf("wait for check: %w", err)
						}
						if st := a.Engine.Stats(); st.LastError != "" {
							return fmt.Errorf("check failed: %s", st.LastError)
						}
						mu.Lock()
						reports := append([]report.Report(nil), found...)
						mu.Unlock()
						printCheck(reports, a.Seen.Len(), *a.Engine.Location())
						return nil
					}
					if err != nil {
						return fmt.Errorf("check %s: %w", res.Outcome, err)
					}
					printCheck(res.NewReports, res.SeenCount, *a.Engine.Location())
					return nil
				},
			)
		},
	}
	loc.register(cmd)
	return cmd
}

func nearbyCmd() *cobra.Command {
	var loc locationFlags
	var radius float64
	cmd := &cobra.Command{
		Use:   "nearby",
		Short: "List reports from the last 24 hours near a point, without touching state",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Read-only: always served from this process.
			return run(nil, func(ctx context.Context, a *app.App) error {
				if err := loc.apply(ctx, a); err != nil {
					return err
				}
				if radius <= 0 {
					radius = a.Config.RadiusKm
				}
				nearby, err := a.Controller.CheckOnce(ctx, nil, radius)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDISTANCE\tCATEGORY\tTITLE\tREPORTED")
				for _, n := range nearby {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						n.ID, geo.FormatDistance(n.DistanceKm), n.Category, n.Title,
						n.ReportedAt().Local().Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	}
	loc.register(cmd)
	cmd.Flags().Float64Var(&radius, "radius", 0, "Radius in km (default POLL_RADIUS_KM)")
	return cmd
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget all seen reports and restart the recency window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(
				func(ctx context.Context, c *watcherClient) error {
					if err := c.reset(ctx); err != nil {
						return err
					}
					fmt.Println("Seen reports cleared")
					return nil
				},
				func(ctx context.Context, a *app.App) error {
					if err := a.Controller.ResetSeen(ctx); err != nil {
						return err
					}
					fmt.Println("Seen reports cleared")
					return nil
				},
			)
		},
	}
}

// --------------------------------------------------------------------------
// config command
// --------------------------------------------------------------------------

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Change persisted polling configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Enable polling (asks for notification permission)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(
				func(ctx context.Context, c *watcherClient) error {
					return c.setEnabled(ctx, true)
				},
				func(ctx context.Context, a *app.App) error {
					return a.Controller.SetEnabled(ctx, true)
				},
			)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "disable",
		Short: "Disable polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(
				func(ctx context.Context, c *watcherClient) error {
					return c.setEnabled(ctx, false)
				},
				func(ctx context.Context, a *app.App) error {
					return a.Controller.SetEnabled(ctx, false)
				},
			)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "interval <minutes>",
		Short: "Set the polling interval (1, 2, 5, 10 or 15 minutes)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[0])
			if err != nil || !config.ValidIntervalMinutes(minutes) {
				return fmt.Errorf("interval must be one of %v minutes", config.IntervalMenuMinutes)
			}
			return run(
				func(ctx context.Context, c *watcherClient) error {
					return c.setInterval(ctx, minutes)
				},
				func(ctx context.Context, a *app.App) error {
					return a.Controller.SetInterval(ctx, time.Duration(minutes)*time.Minute)
				},
			)
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

type locationFlags struct {
	lat, lon float64
}

func (l *locationFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&l.lat, "lat", 0, "Latitude (default HOME_LATITUDE)")
	cmd.Flags().Float64Var(&l.lon, "lon", 0, "Longitude (default HOME_LONGITUDE)")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
}

func (l *locationFlags) set() bool {
	return l.lat != 0 || l.lon != 0
}

func (l *locationFlags) point() geo.Point {
	return geo.Point{Latitude: l.lat, Longitude: l.lon}
}

// apply sets the location from flags when given; otherwise the home
// location from the environment must be present.
func (l *locationFlags) apply(ctx context.Context, a *app.App) error {
	if l.set() {
		return a.Controller.UpdateLocation(ctx, l.point())
	}
	if a.Engine.Location() == nil {
		return errNoLocation
	}
	return nil
}

// run hands the command to a reachable watcher when remote is non-nil, and
// otherwise builds a local polling stack on the shared state store.
func run(remote func(ctx context.Context, c *watcherClient) error, local func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if remote != nil && !forceLocal {
		url := cfg.ControlURL
		if watcherURL != "" {
			url = strings.TrimRight(watcherURL, "/")
		}
		if c := dialWatcher(ctx, url, cfg.CheckTimeout); c != nil {
			return remote(ctx, c)
		}
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return local(ctx, a)
}

func printCheck(reports []report.Report, seenCount int, from geo.Point) {
	fmt.Printf("%d new report(s), %d seen\n", len(reports), seenCount)
	for _, r := range reports {
		d := geo.Distance(from, r.Coordinates)
		fmt.Printf("  %s  %s: %s (%s)\n", r.ID, r.Category, r.Title, geo.FormatDistance(d))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
