package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/apex/log"
	"github.com/kstenerud/go-rebind"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringArrayP("rebind", "r", nil, "Rebinding as name=0xaddress (repeatable)")
	applyCmd.MarkFlagRequired("rebind")
}

// parseRebinding parses name=address, where address is any integer literal
// strconv accepts.
func parseRebinding(arg string) (rebinding rebind.Rebinding, err error) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok || name == "" {
		err = errors.Errorf("invalid rebinding %q: expected name=address", arg)
		return
	}
	address, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		err = errors.Wrapf(err, "invalid address in rebinding %q", arg)
		return
	}
	rebinding = rebind.Rebinding{Name: name, Replacement: uintptr(address)}
	return
}

var applyCmd = &cobra.Command{
	Use:          "apply <MACHO>",
	Short:        "Dry-run rebindings against a mapped copy of an image",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		flagValues, _ := cmd.Flags().GetStringArray("rebind")

		rebindings := make([]rebind.Rebinding, 0, len(flagValues))
		for _, arg := range flagValues {
			rebinding, err := parseRebinding(arg)
			if err != nil {
				return err
			}
			rebindings = append(rebindings, rebinding)
		}
		image, rebinder, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer image.Close()

		before := rebinder.Slots(image.Image())
		if err := rebinder.RebindImage(image.Image(), rebindings); err != nil {
			return errors.Wrap(err, "failed to rebind")
		}
		after := rebinder.Slots(image.Image())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		changed := 0
		for i := range after {
			if after[i].Value == before[i].Value {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%#x\t->\t%s\n",
				colorAddr("%#x", image.VMAddr(after[i].Address)), slotLocation(after[i]),
				colorSymbol(after[i].Symbol), before[i].Value, colorChanged("%#x", after[i].Value))
			changed++
		}
		w.Flush()

		bound := map[string]bool{}
		for _, slot := range before {
			bound[slot.Symbol] = true
		}
		for _, rebinding := range rebindings {
			if !bound["_"+rebinding.Name] {
				log.WithField("symbol", rebinding.Name).Warn("no slot bound to symbol")
			}
		}
		fmt.Printf("\n%d slots rebound\n", changed)
		return nil
	},
}
