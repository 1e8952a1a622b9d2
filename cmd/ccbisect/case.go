package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ccbisect/internal/casefile"
)

var (
	casePackProject string
	casePackGood    string
	casePackBad     string
	casePackMarker  string
	casePackOpt     string
	casePackFlags   []string
	casePackOut     string
)

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Pack and inspect case archives",
}

var casePackCmd = &cobra.Command{
	Use:   "pack <source.c>",
	Short: "Pack a C source into a case archive",
	Long: `Pack a C source file together with its bisection metadata into a
zstd-compressed case archive that 'ccbisect run --case' accepts.

Examples:
  ccbisect case pack crash.c --project=gcc --good=releases/gcc-12.1.0 --bad=trunk \
      --marker=DCEMarker0_ --opt=3 -o crash.tar.zst`,
	Args: cobra.ExactArgs(1),
	RunE: runCasePack,
}

var caseShowCmd = &cobra.Command{
	Use:   "show <archive>",
	Short: "Print a case archive's metadata and source",
	Args:  cobra.ExactArgs(1),
	RunE:  runCaseShow,
}

func init() {
	casePackCmd.Flags().StringVar(&casePackProject, "project", "gcc", "Compiler project: gcc or llvm")
	casePackCmd.Flags().StringVar(&casePackGood, "good", "", "Revision where the behavior is absent")
	casePackCmd.Flags().StringVar(&casePackBad, "bad", "", "Revision where the behavior is present")
	casePackCmd.Flags().StringVar(&casePackMarker, "marker", "", "Dead-code marker function name")
	casePackCmd.Flags().StringVar(&casePackOpt, "opt", "3", "Optimization level without the -O prefix")
	casePackCmd.Flags().StringSliceVar(&casePackFlags, "flag", nil, "Extra compiler flag (repeatable)")
	casePackCmd.Flags().StringVarP(&casePackOut, "output", "o", "", "Archive path (default: <source>.tar.zst)")

	caseCmd.AddCommand(casePackCmd)
	caseCmd.AddCommand(caseShowCmd)
	rootCmd.AddCommand(caseCmd)
}

func runCasePack(cmd *cobra.Command, args []string) error {
	code, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	c := casefile.New(casePackProject, casePackGood, casePackBad, string(code))
	c.Marker = casePackMarker
	c.OptLevel = casePackOpt
	c.Flags = casePackFlags

	out := casePackOut
	if out == "" {
		out = args[0] + ".tar.zst"
	}
	if err := casefile.Save(out, c); err != nil {
		return err
	}
	fmt.Printf("wrote %s (case %s)\n", out, c.ID)
	return nil
}

func runCaseShow(cmd *cobra.Command, args []string) error {
	c, err := casefile.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("id:       %s\n", c.ID)
	fmt.Printf("project:  %s\n", c.Project)
	fmt.Printf("good:     %s\n", c.Good)
	fmt.Printf("bad:      %s\n", c.Bad)
	if c.Marker != "" {
		fmt.Printf("marker:   %s (-O%s)\n", c.Marker, c.OptLevel)
	}
	if len(c.Flags) > 0 {
		fmt.Printf("flags:    %v\n", c.Flags)
	}
	if c.Result != "" {
		fmt.Printf("result:   %s\n", c.Result)
	}
	fmt.Printf("created:  %s\n", c.CreatedAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Print(c.Code)
	return nil
}
