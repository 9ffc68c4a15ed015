package main

import (
	"context"
	"fmt"

	"github.com/ternarybob/prospector/internal/app"
	"github.com/ternarybob/prospector/internal/models"
)

// runCommand dispatches a CLI command against the running application. Every
// command except capture is a single call over the message bus.
func runCommand(ctx context.Context, application *app.App, args []string) error {
	switch args[0] {
	case "capture":
		if len(args) < 3 {
			return fmt.Errorf("usage: prospector capture <niche> <location>")
		}
		return application.RunCapture(ctx, args[1], args[2])

	case "export":
		if len(args) < 2 {
			return fmt.Errorf("usage: prospector export <csv|json>")
		}
		kind := models.MsgDownloadCSV
		switch args[1] {
		case "csv":
		case "json":
			kind = models.MsgDownloadJSON
		default:
			return fmt.Errorf("unknown export format %q", args[1])
		}
		reply, err := application.Client.Call(ctx, models.Message{Kind: kind})
		if err != nil {
			return err
		}
		if !reply.OK {
			return fmt.Errorf("export failed: %s", reply.Err)
		}
		fmt.Printf("Export written to %s\n", reply.Path)
		return nil

	case "enrich":
		reply, err := application.Client.Call(ctx, models.Message{Kind: models.MsgEnrichEmails})
		if err != nil {
			return err
		}
		fmt.Printf("Enriched %d items (%d failures)\n", reply.Processed, reply.Failures)
		return printLastError(ctx, application)

	case "import":
		if len(args) < 3 {
			return fmt.Errorf("usage: prospector import <niche> <location>")
		}
		reply, err := application.Client.Call(ctx, models.Message{
			Kind:     models.MsgImport,
			Niche:    args[1],
			Location: args[2],
		})
		if err != nil {
			return err
		}
		if !reply.OK {
			return fmt.Errorf("import failed: %s", reply.Err)
		}
		if reply.LastImport != nil {
			fmt.Printf("Imported %d items (status %d)\n", reply.LastImport.Count, reply.LastImport.Status)
		}
		return nil

	case "status":
		reply, err := application.Client.Call(ctx, models.Message{Kind: models.MsgGet})
		if err != nil {
			return err
		}
		fmt.Printf("Items:     %d\n", reply.Total)
		fmt.Printf("Capturing: %v\n", reply.Capturing)
		if reply.LastImport != nil {
			fmt.Printf("Last import: %d items at %s (status %d)\n",
				reply.LastImport.Count, reply.LastImport.ImportedAt.Format("2006-01-02 15:04:05"), reply.LastImport.Status)
		}
		if reply.LastError != "" {
			fmt.Printf("Last error: %s\n", reply.LastError)
		}
		if reply.LastDebug != nil {
			fmt.Printf("Last empty panel: %s (%s)\n", reply.LastDebug.ID, reply.LastDebug.PageTitle)
		}
		return nil

	case "clear":
		reply, err := application.Client.Call(ctx, models.Message{Kind: models.MsgClear})
		if err != nil {
			return err
		}
		if !reply.OK {
			return fmt.Errorf("clear failed: %s", reply.Err)
		}
		fmt.Println("All items cleared")
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// printLastError surfaces a domain failure recorded during the preceding
// operation, such as an enrichment abort.
func printLastError(ctx context.Context, application *app.App) error {
	reply, err := application.Client.Call(ctx, models.Message{Kind: models.MsgGet})
	if err != nil {
		return err
	}
	if reply.LastError != "" {
		fmt.Printf("Warning: %s\n", reply.LastError)
	}
	return nil
}
