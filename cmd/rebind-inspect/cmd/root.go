// Package cmd implements rebind-inspect, which shows what rebinding would do
// to a Mach-O image on disk without loading it.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	"github.com/kstenerud/go-rebind"
	"github.com/kstenerud/go-rebind/internal/machofile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rebind-inspect",
	Short: "Inspect and dry-run symbol rebinding on Mach-O images",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = !viper.GetBool("color")
	},
}

// Execute runs the command line. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihandler.Default)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().Bool("color", false, "colorize output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
	viper.BindEnv("color", "CLICOLOR")

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err == nil {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix("rebind")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// openImage maps path and returns a rebinder over the copy. The copy is on
// the Go heap, so __DATA_CONST protection is never touched.
func openImage(path string) (*machofile.Image, *rebind.Rebinder, error) {
	image, err := machofile.Open(path)
	if err != nil {
		return nil, nil, err
	}
	config := rebind.DefaultConfig()
	config.ProtectConst = false
	return image, rebind.New(image, config), nil
}

var (
	colorAddr    = color.New(color.Faint).SprintfFunc()
	colorSection = color.New(color.FgHiBlue).SprintFunc()
	colorSymbol  = color.New(color.FgHiGreen).SprintFunc()
	colorChanged = color.New(color.FgHiYellow, color.Bold).SprintfFunc()
)

func slotLocation(slot rebind.Slot) string {
	return colorSection(fmt.Sprintf("%s.%s[%d]", slot.Segment, slot.Section, slot.Index))
}
