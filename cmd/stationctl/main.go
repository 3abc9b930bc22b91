package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/station-pick/internal/adapter/handler"
)

var rootCmd = &cobra.Command{
	Use:          "stationctl",
	Short:        "Operate a pick station through a running station-server",
	SilenceUsage: true,
}

func main() {
	_ = godotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STATION")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("server", "s", "localhost:9090", "station-server gRPC address")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(locationsCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(sapOrdersCmd())
	rootCmd.AddCommand(linesCmd())
	rootCmd.AddCommand(ensureCmd())
	rootCmd.AddCommand(pickCmd())
	rootCmd.AddCommand(inboundCmd())
	rootCmd.AddCommand(releaseCmd())
	rootCmd.AddCommand(syncCmd())
}

func withClient(ctx context.Context, fn func(ctx context.Context, c *handler.GRPCClient) error) error {
	conn, err := grpc.NewClient(viper.GetString("server"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, viper.GetDuration("timeout"))
	defer cancel()
	return fn(ctx, handler.NewGRPCClient(conn))
}

func locationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locations <material>",
		Short: "Show storage and station trays for a material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.GRPCClient) error {
				snap, err := c.Locations(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				fmt.Printf("%s (%s, fetched %s)\n", snap.Material, snap.Freshness, snap.FetchedAt.Format(time.RFC3339))
				if snap.LastError != "" {
					fmt.Println("last error:", snap.LastError)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Where", "Tray", "Available", "Inbound", "Order", "Status", "Station"})
				for _, t := range snap.Station {
					order, status, station := "", "", ""
					if t.Order != nil {
						order, status, station = t.Order.ID, t.Order.Status, t.Order.StationName
					}
					tw.AppendRow(table.Row{"station", t.TrayID, t.AvailableQuantity, t.InboundDate.Format("2006-01-02"), order, status, station})
				}
				for _, t := range snap.Storage {
					tw.AppendRow(table.Row{"storage", t.TrayID, t.AvailableQuantity, t.InboundDate.Format("2006-01-02"), "", "", ""})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	var req handler.ReconcileRequest
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Show the SAP reconciliation report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.GRPCClient) error {
				report, err := c.Reconciliation(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("reconciliation (%s)\n", report.Freshness)
				tw := newTable()
				tw.AppendHeader(table.Row{"Material", "SAP", "Robot", "Difference", "Status", "Action"})
				for _, r := range report.Records {
					action := ""
					if r.Actionable {
						action = "review"
					}
					tw.AppendRow(table.Row{r.Material, r.SapQuantity, r.ItemQuantity, r.Difference, r.Status, action})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Status, "status", "", "matched, sap_shortage or robot_shortage")
	cmd.Flags().StringVar(&req.Material, "material", "", "material filter")
	return cmd
}

func sapOrdersCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "sap-orders",
		Short: "List SAP orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.GRPCClient) error {
				orders, err := c.SapOrders(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Order", "Items", "Pending", "Completed", "Status"})
				for _, o := range orders {
					tw.AppendRow(table.Row{o.Ref, o.TotalItems, o.PendingItems, o.CompletedItems, o.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "active", "order status filter")
	return cmd
}

func linesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lines <order-ref>",
		Short: "Show the lines of a SAP order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.GRPCClient) error {
				lines, err := c.OrderLines(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(lines)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Material", "Description", "Required", "Consumed", "Remaining"})
				for _, l := range lines {
					tw.AppendRow(table.Row{l.Material, l.Description, l.RequiredQuantity, l.ConsumedQuantity, l.Remaining})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func ensureCmd() *cobra.Command {
	var req handler.TrayRequest
	var ready bool
	cmd := &cobra.Command{
		Use:   "ensure <tray-id>",
		Short: "Request the tray at the station, reusing an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.TrayID = args[0]
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.GRPCClient) error {
				ensure := c.EnsureOrder
				if ready {
					ensure = c.ReadyOrder
				}
				order, err := ensure(ctx, req)
				if err != nil {
					return err
				}
				return printOrder(order)
			})
		},
	}
	cmd.Flags().StringVar(&req.Material, "material", "", "material the tray holds")
	cmd.Flags().BoolVar(&ready, "ready", false, "fail unless the tray is already at the station")
	return cmd
}

func pickCmd() *cobra.Command {
	var req handler.PickRequest
	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Pick quantity from a delivered tray",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.GRPCClient) error {
				txn, err := c.Pick(ctx, req)
				if err != nil {
					return err
				}
				return printTransaction(txn)
			})
		},
	}
	cmd.Flags().StringVar(&req.OrderID, "order", "", "retrieval order id")
	cmd.Flags().StringVar(&req.TrayID, "tray", "", "tray id")
	cmd.Flags().StringVar(&req.Material, "material", "", "material")
	cmd.Flags().IntVar(&req.Quantity, "quantity", 0, "quantity to pick")
	cmd.Flags().StringVar(&req.SapOrderRef, "sap-order", "", "SAP order reference (omit for reconciliation picks)")
	_ = cmd.MarkFlagRequired("order")
	_ = cmd.MarkFlagRequired("tray")
	_ = cmd.MarkFlagRequired("material")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func inboundCmd() *cobra.Command {
	var req handler.InboundRequest
	cmd := &cobra.Command{
		Use:   "inbound",
		Short: "Record stock put away for a material",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.GRPCClient) error {
				txn, err := c.Inbound(ctx, req)
				if err != nil {
					return err
				}
				return printTransaction(txn)
			})
		},
	}
	cmd.Flags().StringVar(&req.Material, "material", "", "material")
	cmd.Flags().IntVar(&req.Quantity, "quantity", 0, "quantity put away")
	cmd.Flags().StringVar(&req.TrayID, "tray", "", "put-away tray id")
	_ = cmd.MarkFlagRequired("material")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func releaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <order-id>",
		Short: "Send the tray back to storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.GRPCClient) error {
				if err := c.Release(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("order %s released\n", args[0])
				return nil
			})
		},
	}
}

func syncCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Show background sync health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.GRPCClient) error {
				get := c.SyncStatus
				if refresh {
					get = c.Refresh
				}
				status, err := get(ctx)
				if err != nil {
					return err
				}
				return printJSON(status)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "run a sync round first")
	return cmd
}

func printOrder(o handler.Order) error {
	if viper.GetBool("json") {
		return printJSON(o)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Order", "Tray", "Status", "Station", "Updated"})
	tw.AppendRow(table.Row{o.ID, o.TrayID, o.Status, o.StationName, o.UpdatedAt.Format(time.RFC3339)})
	tw.Render()
	return nil
}

func printTransaction(t handler.Transaction) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Transaction", "Order", "Tray", "Material", "Quantity", "Type", "SAP Order"})
	tw.AppendRow(table.Row{t.ID, t.OrderID, t.TrayID, t.Material, t.Quantity, t.Type, t.SapOrderRef})
	tw.Render()
	return nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
