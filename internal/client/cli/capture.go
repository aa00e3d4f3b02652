package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/scanvault/internal/client/outbox"
	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/spf13/cobra"
)

const defaultNoteName = "note.txt"

type captureFlags struct {
	text     string
	name     string
	mimeType string
	now      bool
}

func newCaptureCmd(o *options) *cobra.Command {
	var f captureFlags

	cmd := &cobra.Command{
		Use:   "capture [file]",
		Short: "Save a note or a file to the outbox",
		Long: "Save a note (--text, or --text - to read stdin) or a file to the outbox.\n" +
			"Nothing is sent until the outbox is drained.",
		Args: cobra.MaximumNArgs(1),
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			c, closeFn, err := f.build(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := a.outbox.Enqueue(cmd.Context(), c)
			if err != nil {
				if id != "" {
					// saved, the next command re-queues it
					fmt.Fprintf(a.out, "Saved %s but could not queue it: %v\n", id, err)
				}
				return err
			}
			fmt.Fprintf(a.out, "Queued %s\n", id)

			if !f.now {
				return nil
			}
			return a.drain(cmd.Context(), false)
		}),
	}

	cmd.Flags().StringVarP(&f.text, "text", "t", "", "note text, or - to read it from stdin")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "name to store the capture under")
	cmd.Flags().StringVar(&f.mimeType, "type", "", "content type of the file (sniffed when empty)")
	cmd.Flags().BoolVar(&f.now, "now", false, "drain the outbox right away")
	return cmd
}

func (f *captureFlags) build(args []string, stdin io.Reader) (outbox.Capture, func(), error) {
	noop := func() {}

	switch {
	case len(args) == 1 && f.text != "":
		return nil, noop, fmt.Errorf("%w: give either a file or --text", common.ErrValidation)

	case len(args) == 1:
		file, err := os.Open(args[0])
		if err != nil {
			return nil, noop, err
		}
		name := f.name
		if name == "" {
			name = filepath.Base(args[0])
		}
		return outbox.BinaryCapture{Name: name, MimeType: f.mimeType, Source: file}, func() { file.Close() }, nil

	case f.text != "":
		text := f.text
		if text == "-" {
			b, err := io.ReadAll(stdin)
			if err != nil {
				return nil, noop, fmt.Errorf("reading stdin: %w", err)
			}
			text = string(b)
		}
		if strings.TrimSpace(text) == "" {
			return nil, noop, fmt.Errorf("%w: note is empty", common.ErrValidation)
		}
		name := f.name
		if name == "" {
			name = defaultNoteName
		}
		return outbox.TextCapture{Name: name, Text: text}, noop, nil

	default:
		return nil, noop, errors.New("nothing to capture: give a file or --text")
	}
}
