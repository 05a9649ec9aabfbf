package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dmefax/faxdesk/internal/domain/bulk"
	"github.com/dmefax/faxdesk/internal/domain/device"
	"github.com/dmefax/faxdesk/pkg/pagination"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp runs fn with an app that does not require a database.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func bulkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Generate order documents for every row of a CSV or XLSX file",
		Long: "Generate one order document per patient row. In archive mode the documents\n" +
			"are collected into a zip written to --out; in dispatch mode each document is\n" +
			"faxed to the row's pcp_fax number.",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			deviceTag, _ := cmd.Flags().GetString("device")
			templateRef, _ := cmd.Flags().GetString("template")
			modeName, _ := cmd.Flags().GetString("mode")
			outDir, _ := cmd.Flags().GetString("out")

			if file == "" {
				return fmt.Errorf("--file is required")
			}
			d, err := device.Parse(deviceTag)
			if err != nil {
				return err
			}
			mode, err := bulk.ParseMode(modeName)
			if err != nil {
				return err
			}

			return withApp(func(ctx context.Context, a *app) error {
				orch, err := a.orchestrator(ctx, mode)
				if err != nil {
					return err
				}
				res, runErr := orch.GenerateFile(ctx, file, templateRef, d, mode)
				if res != nil {
					for _, line := range res.Lines() {
						fmt.Fprintln(cmd.OutOrStdout(), line)
					}
					fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
				}
				if runErr != nil {
					return runErr
				}
				if res.Archive == nil {
					return nil
				}
				defer res.Archive.Release()
				dst, err := saveArchive(res.Archive, outDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Archive written to %s\n", dst)
				return nil
			})
		},
	}
	cmd.Flags().String("file", "", "Patient records file (.csv or .xlsx)")
	cmd.Flags().String("device", "", "Device type (cgm, ankle, knee, back, ...)")
	cmd.Flags().String("template", "", "Template path relative to TEMPLATE_DIR (default: the device template)")
	cmd.Flags().String("mode", string(bulk.ModeArchive), "archive or dispatch")
	cmd.Flags().String("out", ".", "Directory for the generated archive")
	return cmd
}

// saveArchive copies the archive into dir under its download name.
func saveArchive(a *bulk.Archive, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	src, err := a.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst := filepath.Join(dir, a.Name)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return "", fmt.Errorf("write archive: %w", err)
	}
	return dst, f.Close()
}

func faxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fax",
		Short: "HumbleFax account operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Check that the HumbleFax credentials work",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.faxService().TestConnection(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("connection test failed: %s", res.Error)
				}
				return nil
			})
		},
	})

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List sent and received faxes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			direction, _ := cmd.Flags().GetString("direction")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			return withApp(func(ctx context.Context, a *app) error {
				items, _, err := a.faxService().History(ctx, direction, pagination.Params{Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%-14s %-9s %-14s %-14s %-12s %s\n", "ID", "DIRECTION", "TO", "FROM", "STATUS", "CREATED")
				for _, f := range items {
					fmt.Fprintf(w, "%-14s %-9s %-14s %-14s %-12s %s\n", f.ID, f.Direction, f.To, f.From, f.Status, f.CreatedAt)
				}
				return nil
			})
		},
	}
	historyCmd.Flags().String("direction", "", "outbound or inbound (default: both)")
	historyCmd.Flags().Int("limit", pagination.DefaultLimit, "Page size")
	historyCmd.Flags().Int("offset", 0, "Page offset")
	cmd.AddCommand(historyCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "detail <fax-id>",
		Short: "Show one fax",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				f, err := a.faxService().Detail(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), f)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resend <fax-id>",
		Short: "Send an existing fax again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.faxService().Resend(ctx, args[0])
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("resend failed: %s", res.Error)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <fax-id>",
		Short: "Cancel a pending fax",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.faxService().Cancel(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Fax %s cancelled.\n", args[0])
				return nil
			})
		},
	})

	registerCmd := &cobra.Command{
		Use:   "media-register <media-url>",
		Short: "Copy a remote document into Telnyx media storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")

			return withApp(func(ctx context.Context, a *app) error {
				stored, err := a.faxService().RegisterMedia(ctx, args[0], name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Media stored as %s\n", stored)
				return nil
			})
		},
	}
	registerCmd.Flags().String("name", "", "Media name (default: assigned by Telnyx)")
	cmd.AddCommand(registerCmd)

	return cmd
}

func smsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sms",
		Short: "Twilio SMS operations",
	}

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send a text message to one number",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			message, _ := cmd.Flags().GetString("message")

			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.smsService().Send(ctx, to, message)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("sms failed: %s", res.Error)
				}
				return nil
			})
		},
	}
	sendCmd.Flags().String("to", "", "Recipient phone number")
	sendCmd.Flags().String("message", "", "Message body")
	cmd.AddCommand(sendCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Check that the Twilio credentials work",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.smsService().TestConnection(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("connection test failed: %s", res.Error)
				}
				return nil
			})
		},
	})

	return cmd
}
