package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mockidp/mockidp/pkg/config"
)

var (
	initForce       bool
	initOutput      string
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter configuration file",
	Long: `Create a starter mockidp configuration file with commented defaults.

In interactive mode (-i) a short form asks for the listen port, issuer URL
and token lifetimes.`,
	Example: `  # Create idp.yaml with defaults
  mockidp init

  # Interactive setup
  mockidp init -i

  # Custom filename, overwrite if present
  mockidp init -o dev-idp.yaml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "idp.yaml", "Output filename")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for configuration values")
}

func runInit() error {
	if _, err := os.Stat(initOutput); err == nil && !initForce {
		return fmt.Errorf("file already exists: %s (use --force to overwrite)", initOutput)
	}

	settings := config.Default()
	if initInteractive {
		if err := runInteractiveInit(settings); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# mockidp configuration\n# Any email/password logs in; claims are synthesized from the email.\n"
	if err := os.WriteFile(initOutput, []byte(header+string(data)), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", initOutput, err)
	}

	fmt.Printf("Created %s\n", filepath.Clean(initOutput))
	fmt.Println("Start the server with: mockidp serve --config " + initOutput)
	return nil
}

func runInteractiveInit(settings *config.Settings) error {
	port := strconv.Itoa(settings.Port)
	issuer := settings.Issuer
	accessExpiry := settings.AccessTokenExpiry
	codeExpiry := settings.AuthorizationCodeExpiry

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen port").
				Placeholder("8080").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 1 || n > 65535 {
						return errors.New("port must be a number between 1 and 65535")
					}
					return nil
				}),
			huh.NewInput().
				Title("Issuer URL (empty = derive from request)").
				Placeholder("http://localhost:8080").
				Value(&issuer),
			huh.NewInput().
				Title("Access token lifetime").
				Placeholder("1h").
				Value(&accessExpiry).
				Validate(validateDuration),
			huh.NewInput().
				Title("Authorization code lifetime").
				Placeholder("10m").
				Value(&codeExpiry).
				Validate(validateDuration),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	settings.Port, _ = strconv.Atoi(strings.TrimSpace(port))
	settings.Issuer = strings.TrimSpace(issuer)
	settings.AccessTokenExpiry = accessExpiry
	settings.AuthorizationCodeExpiry = codeExpiry
	settings.IDTokenExpiry = accessExpiry
	return nil
}

func validateDuration(s string) error {
	if _, err := config.ParseDuration(s); err != nil {
		return errors.New("use a duration like 30m, 1h or 7d")
	}
	return nil
}
