// Command sealpack builds, lists, and extracts sealed file containers.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/sealpack"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sealpack:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "sealpack",
		Short:         "Package files into a sealed, encrypted container",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(buildCmd(&verbose), listCmd(&verbose), extractCmd(&verbose))
	return cmd
}

func logger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// passphrase reads the key material from the flag, falling back to the
// SEALPACK_PASSPHRASE environment variable.
func passphrase(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("SEALPACK_PASSPHRASE"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("no passphrase: use --passphrase or SEALPACK_PASSPHRASE")
}

func buildCmd(verbose *bool) *cobra.Command {
	var (
		output     string
		pass       string
		wordsFile  string
		phonesFile string
		override   bool
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "build -o OUTPUT FILE...",
		Short: "Package files into a new container",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passphrase(pass)
			if err != nil {
				return err
			}
			bl, err := loadBlacklist(wordsFile, phonesFile)
			if err != nil {
				return err
			}

			opts := []sealpack.BuildOption{
				sealpack.BuildWithLogger(logger(*verbose)),
			}
			if bl != nil {
				opts = append(opts, sealpack.BuildWithBlacklist(bl))
			}
			if override {
				opts = append(opts, sealpack.BuildWithScanOverride())
			}
			if workers > 0 {
				opts = append(opts, sealpack.BuildWithWorkers(workers))
			}

			report, err := sealpack.Build(cmd.Context(), args, pw, output, opts...)
			if err != nil {
				return err
			}

			for _, e := range report.Entries {
				switch e.Status {
				case sealpack.StatusWritten:
					fmt.Printf("written   %s (%s, %d -> %d bytes)\n",
						e.Path, e.Category, e.OriginalSize, e.CompressedSize)
				default:
					fmt.Printf("%-9s %s: %s\n", e.Status, e.Path, e.Reason)
				}
			}
			fmt.Printf("%d written, %d rejected, %d failed\n",
				report.Written, report.Rejected, report.Failed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "container file to create")
	cmd.Flags().StringVarP(&pass, "passphrase", "p", "", "encryption passphrase")
	cmd.Flags().StringVar(&wordsFile, "blacklist-words", "", "word blacklist file, one term per line")
	cmd.Flags().StringVar(&phonesFile, "blacklist-phones", "", "phone blacklist file, one number per line")
	cmd.Flags().BoolVar(&override, "override-scan", false, "package files even when the blacklist matches")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent file workers (default GOMAXPROCS)")
	cobra.CheckErr(cmd.MarkFlagRequired("output"))
	return cmd
}

func listCmd(verbose *bool) *cobra.Command {
	var pass string

	cmd := &cobra.Command{
		Use:   "list CONTAINER",
		Short: "List a container's entries without extracting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passphrase(pass)
			if err != nil {
				return err
			}
			archive, err := sealpack.Open(args[0], pw,
				sealpack.OpenWithLogger(logger(*verbose)))
			if err != nil {
				return err
			}
			defer archive.Close()

			for _, e := range archive.List() {
				fmt.Printf("%-10s %10d  %s  %s\n", e.Category, e.OriginalSize, e.Digest, e.Path)
			}
			for _, s := range archive.Skipped() {
				fmt.Printf("[%s] %s: %s\n", s.Status, s.Path, s.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&pass, "passphrase", "p", "", "encryption passphrase")
	return cmd
}

func extractCmd(verbose *bool) *cobra.Command {
	var (
		pass string
		dest string
	)

	cmd := &cobra.Command{
		Use:   "extract CONTAINER",
		Short: "Extract and verify a container's entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passphrase(pass)
			if err != nil {
				return err
			}
			archive, err := sealpack.Open(args[0], pw,
				sealpack.OpenWithLogger(logger(*verbose)))
			if err != nil {
				return err
			}
			defer archive.Close()

			result, err := archive.ExtractAll(cmd.Context(), dest)
			if err != nil {
				return err
			}
			for path, perr := range result.Errors {
				fmt.Fprintf(os.Stderr, "failed %s: %v\n", path, perr)
			}
			fmt.Printf("%d restored, %d failed\n", result.Restored, result.Failed)
			if result.Failed > 0 {
				return fmt.Errorf("%d entries failed verification", result.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&pass, "passphrase", "p", "", "encryption passphrase")
	cmd.Flags().StringVarP(&dest, "dest", "d", ".", "destination directory")
	return cmd
}

func loadBlacklist(wordsFile, phonesFile string) (*sealpack.Blacklist, error) {
	if wordsFile == "" && phonesFile == "" {
		return nil, nil
	}
	var words, phones *os.File
	var err error
	if wordsFile != "" {
		if words, err = os.Open(wordsFile); err != nil {
			return nil, err
		}
		defer words.Close()
	}
	if phonesFile != "" {
		if phones, err = os.Open(phonesFile); err != nil {
			return nil, err
		}
		defer phones.Close()
	}
	// Pass typed nils through as untyped nils.
	var wr, pr io.Reader
	if words != nil {
		wr = words
	}
	if phones != nil {
		pr = phones
	}
	return sealpack.LoadBlacklist(wr, pr)
}
