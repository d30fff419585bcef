package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alhafibarefoot/HelpDesk-sub001/internal/config"
	internal_http "github.com/alhafibarefoot/HelpDesk-sub001/internal/http"
	"github.com/alhafibarefoot/HelpDesk-sub001/internal/log"
	"github.com/alhafibarefoot/HelpDesk-sub001/internal/service"
	internal_storage "github.com/alhafibarefoot/HelpDesk-sub001/internal/storage"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/engine"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/graph"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/monitor"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/notify"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/storage"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a workflow definition file without saving it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			def := loadDefinitionFile(args[0])
			if verrs := graph.New(def).Validate(); len(verrs) > 0 {
				fmt.Fprintf(os.Stderr, "Definition '%s' is invalid:\n", def.Name)
				for _, verr := range verrs {
					fmt.Fprintf(os.Stderr, "- %s\n", verr)
				}
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Definition '%s' is valid\n", def.Name)
		},
	}

	createCmd := &cobra.Command{
		Use:   "create [file]",
		Short: "Create a workflow definition from a JSON file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := storeFromFlags(cmd)
			defer store.Close()
			svc := service.NewDefinitionService(store)
			def := loadDefinitionFile(args[0])
			id, err := svc.CreateDefinition(def)
			if err != nil {
				fail("create definition", err)
			}
			fmt.Fprintf(os.Stdout, "Created definition '%s' with ID %d\n", def.Name, id)
		},
	}

	publishCmd := &cobra.Command{
		Use:   "publish [id]",
		Short: "Publish a draft definition so requests can run against it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := storeFromFlags(cmd)
			defer store.Close()
			svc := service.NewDefinitionService(store)
			id := parseID(args[0])
			if err := svc.PublishDefinition(id); err != nil {
				fail("publish definition", err)
			}
			fmt.Fprintf(os.Stdout, "Published definition with ID %d\n", id)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all workflow definitions",
		Run: func(cmd *cobra.Command, args []string) {
			store := storeFromFlags(cmd)
			defer store.Close()
			svc := service.NewDefinitionService(store)
			defs, err := svc.ListDefinitions()
			if err != nil {
				fail("list definitions", err)
			}
			if len(defs) == 0 {
				fmt.Fprintf(os.Stdout, "No definitions found.\n")
				return
			}
			fmt.Fprintf(os.Stdout, "Definitions:\n")
			for _, def := range defs {
				fmt.Fprintf(os.Stdout, "- ID: %d, Name: %s, Version: %d, Status: %s, Created: %s\n",
					def.ID, def.Name, def.Version, def.Status, def.CreatedAt.Format(time.RFC3339))
			}
		},
	}

	submitCmd := &cobra.Command{
		Use:   "submit [definition-id] [requester-id]",
		Short: "Submit a new request against a published definition",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			store := storeFromFlags(cmd)
			defer store.Close()
			formJSON, _ := cmd.Flags().GetString("form")
			formData := map[string]any{}
			if formJSON != "" {
				if err := json.Unmarshal([]byte(formJSON), &formData); err != nil {
					fail("parse --form", err)
				}
			}
			id, err := newEngine(store).Submit(context.Background(), parseID(args[0]), args[1], formData)
			if err != nil {
				fail("submit request", err)
			}
			fmt.Fprintf(os.Stdout, "Submitted request %s\n", id)
		},
	}
	submitCmd.Flags().String("form", "", "Form data as a JSON object")

	advanceCmd := &cobra.Command{
		Use:   "advance [request-id] [node-id] [outcome]",
		Short: "Complete a pending step and advance the request",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			store := storeFromFlags(cmd)
			defer store.Close()
			if err := newEngine(store).AdvanceStep(context.Background(), args[0], args[1], args[2], nil); err != nil {
				fail("advance request", err)
			}
			fmt.Fprintf(os.Stdout, "Advanced request %s past node %s\n", args[0], args[1])
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel [request-id]",
		Short: "Cancel a running request",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := storeFromFlags(cmd)
			defer store.Close()
			if err := newEngine(store).Cancel(context.Background(), args[0]); err != nil {
				fail("cancel request", err)
			}
			fmt.Fprintf(os.Stdout, "Cancelled request %s\n", args[0])
		},
	}

	requestsCmd := &cobra.Command{
		Use:   "requests",
		Short: "List all requests",
		Run: func(cmd *cobra.Command, args []string) {
			store := storeFromFlags(cmd)
			defer store.Close()
			reqs, err := store.ListRequests()
			if err != nil {
				fail("list requests", err)
			}
			if len(reqs) == 0 {
				fmt.Fprintf(os.Stdout, "No requests found.\n")
				return
			}
			fmt.Fprintf(os.Stdout, "Requests:\n")
			for _, req := range reqs {
				fmt.Fprintf(os.Stdout, "- ID: %s, Definition: %d v%d, Requester: %s, Status: %s, Created: %s\n",
					req.ID, req.DefinitionID, req.DefinitionVersion, req.RequesterID, req.Status,
					req.CreatedAt.Format(time.RFC3339))
			}
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the SLA monitor",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.LoadConfig()
			if err != nil {
				fail("load configuration", err)
			}
			store := storeFromFlags(cmd)
			defer store.Close()
			port, _ := cmd.Flags().GetString("port")
			if !cmd.Flags().Changed("port") {
				port = cfg.HTTP.Port
			}

			eng := newEngine(store,
				engine.WithEscalationChain(cfg.Escalation.Chain),
				engine.WithAdminRole(cfg.Escalation.AdminRole))
			mon := monitor.NewMonitor(store, eng, log.GetLogger(),
				monitor.WithInterval(time.Duration(cfg.Monitor.IntervalSeconds)*time.Second),
				monitor.WithWarningThreshold(cfg.Monitor.WarningThreshold),
				monitor.WithWorkers(cfg.Monitor.Workers))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go mon.Start(ctx)

			if err := internal_http.StartServer(port, store, eng); err != nil {
				fail("run server", err)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "HTTP listen port")

	rootCmd.AddCommand(validateCmd, createCmd, publishCmd, listCmd,
		submitCmd, advanceCmd, cancelCmd, requestsCmd, serveCmd)
}

func newEngine(store storage.Store, opts ...engine.Option) *engine.Engine {
	allOpts := append([]engine.Option{
		engine.WithNotifier(&notify.LogNotifier{Logger: log.GetLogger()}),
	}, opts...)
	return engine.NewEngine(store, storage.NewDirectory(store), log.GetLogger(), allOpts...)
}

func loadDefinitionFile(path string) models.WorkflowDefinition {
	data, err := os.ReadFile(path)
	if err != nil {
		fail("read definition file", err)
	}
	var def models.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		fail("parse definition file", err)
	}
	return def
}

func parseID(arg string) int64 {
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid id %q\n", arg)
		os.Exit(1)
	}
	return id
}

func fail(action string, err error) {
	log.GetLogger().Errorf("Failed to %s: %v", action, err)
	fmt.Fprintf(os.Stderr, "Error: failed to %s: %v\n", action, err)
	os.Exit(1)
}

func storeFromFlags(cmd *cobra.Command) *internal_storage.PostgresStore {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	store, err := internal_storage.NewPostgresStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
