package cmd

import (
	"fmt"

	"github.com/jo-hoe/snapframe/internal/camera"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

func newShootCmd() *cobra.Command {
	var photo string
	var noCode bool

	cmd := &cobra.Command{
		Use:   "shoot",
		Short: "Frame and publish a photo, then print its retrieval code",
		Example: `  snapframe shoot --photo ./guest.jpg
  snapframe shoot --photo ./guest.png --config ./config.yaml --no-code`,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := openService(cmd)
			if err != nil {
				return err
			}
			defer service.Close()

			snap, err := service.Shoot(cmd.Context(), camera.NewStillCamera(photo))
			if err != nil {
				return err
			}
			if snap.Record == nil {
				return fmt.Errorf("session ended in %s without a published photo", snap.Phase)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "published %s (%d bytes)\n", snap.Record.FileName, snap.Record.FileSizeBytes)
			if snap.Code == nil {
				// Publishing succeeded; only the code could not be rendered.
				fmt.Fprintf(out, "retrieval code unavailable: %s\n", snap.Error)
				return nil
			}
			if !noCode {
				level, err := service.Config().RecoveryLevel()
				if err != nil {
					return err
				}
				code, err := qrcode.New(snap.Code.URL, level)
				if err != nil {
					return fmt.Errorf("failed to render retrieval code: %w", err)
				}
				fmt.Fprint(out, code.ToSmallString(false))
			}
			fmt.Fprintln(out, snap.Code.URL)
			return nil
		},
	}

	cmd.Flags().StringVar(&photo, "photo", "", "path to the captured image (JPEG or PNG)")
	cmd.Flags().BoolVar(&noCode, "no-code", false, "print only the retrieval URL")
	_ = cmd.MarkFlagRequired("photo")

	return cmd
}
