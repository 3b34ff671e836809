package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vecna-vault/vecna/pkg/password"
)

// Generate command flags
var (
	generateLength      int
	generateCount       int
	generateNoSymbols   bool
	generateNoDigits    bool
	generateNoUppercase bool
	generateNoLowercase bool
	generateExclude     string
	generateCopy        bool
)

const maxGenerateCount = 100

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntVarP(&generateLength, "length", "l", password.DefaultLength, "Password length (8-256)")
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 1, "Number of passwords to generate (1-100)")
	generateCmd.Flags().BoolVar(&generateNoSymbols, "no-symbols", false, "Exclude symbols")
	generateCmd.Flags().BoolVar(&generateNoDigits, "no-digits", false, "Exclude digits")
	generateCmd.Flags().BoolVar(&generateNoUppercase, "no-uppercase", false, "Exclude uppercase letters")
	generateCmd.Flags().BoolVar(&generateNoLowercase, "no-lowercase", false, "Exclude lowercase letters")
	generateCmd.Flags().StringVar(&generateExclude, "exclude", "", "Characters to exclude")
	generateCmd.Flags().BoolVarP(&generateCopy, "copy", "c", false, "Copy the first password to the clipboard")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate secure random passwords",
	Long: `Generate cryptographically secure random passwords.

Examples:
  # Generate a 24-character password (default)
  vecna generate

  # Generate a 32-character password without symbols
  vecna generate -l 32 --no-symbols

  # Generate password excluding ambiguous characters
  vecna generate --exclude "0O1lI"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateCount < 1 || generateCount > maxGenerateCount {
			return fmt.Errorf("count must be between 1 and %d", maxGenerateCount)
		}

		opts := password.Options{
			NoSymbols:   generateNoSymbols,
			NoDigits:    generateNoDigits,
			NoUppercase: generateNoUppercase,
			NoLowercase: generateNoLowercase,
			Exclude:     generateExclude,
		}

		passwords := make([]string, generateCount)
		for i := range passwords {
			p, err := password.Generate(generateLength, opts)
			if err != nil {
				return err
			}
			passwords[i] = p
			fmt.Println(p)
		}

		if generateCopy {
			return copyToClipboard(passwords[0])
		}
		return nil
	},
}
