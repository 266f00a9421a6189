package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/apex/log"
	"github.com/kstenerud/go-rebind/internal/stubs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stubsCmd)
}

var stubsCmd = &cobra.Command{
	Use:          "stubs <MACHO>",
	Short:        "Show which pointer slot each __stubs entry jumps through",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		image, rebinder, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer image.Close()

		section := image.File.Section("__TEXT", "__stubs")
		if section == nil {
			return errors.Errorf("%s has no __TEXT.__stubs section", args[0])
		}
		log.WithFields(log.Fields{
			"addr":      fmt.Sprintf("%#x", section.Addr),
			"size":      section.Size,
			"stub_size": section.Reserved2,
		}).Debug("decoding stubs")

		code, err := image.Bytes(section.Addr, section.Size)
		if err != nil {
			return errors.Wrap(err, "failed to read __TEXT.__stubs")
		}
		resolved, err := stubs.Resolve(image.File.CPU, section.Addr, code, int(section.Reserved2))
		if err != nil {
			return errors.Wrap(err, "failed to decode stubs")
		}

		slots := map[uint64]int{}
		listed := rebinder.Slots(image.Image())
		for i, slot := range listed {
			slots[image.VMAddr(slot.Address)] = i
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, stub := range resolved {
			i, ok := slots[stub.Slot]
			if !ok {
				fmt.Fprintf(w, "%s\t->\t%s\t?\n", colorAddr("%#x", stub.Address), colorAddr("%#x", stub.Slot))
				continue
			}
			fmt.Fprintf(w, "%s\t->\t%s\t%s\t%s\n",
				colorAddr("%#x", stub.Address), colorAddr("%#x", stub.Slot), slotLocation(listed[i]), colorSymbol(listed[i].Symbol))
		}
		w.Flush()
		return nil
	},
}
