package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(slotsCmd)

	slotsCmd.Flags().StringP("symbol", "s", "", "Only show slots bound to this symbol (without the leading underscore)")
}

var slotsCmd = &cobra.Command{
	Use:          "slots <MACHO>",
	Short:        "List the symbol pointer slots rebinding can patch",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol, _ := cmd.Flags().GetString("symbol")

		image, rebinder, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer image.Close()

		slots := rebinder.Slots(image.Image())
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		shown := 0
		for _, slot := range slots {
			if symbol != "" && slot.Symbol != "_"+symbol {
				continue
			}
			kind := "non-lazy"
			if slot.Lazy {
				kind = "lazy"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%#x\n",
				colorAddr("%#x", image.VMAddr(slot.Address)), slotLocation(slot), kind, colorSymbol(slot.Symbol), slot.Value)
			shown++
		}
		w.Flush()
		fmt.Printf("\n%s of %s slots\n", humanize.Comma(int64(shown)), humanize.Comma(int64(len(slots))))
		return nil
	},
}
