package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/matrioska/internal/config"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

var (
	initForce    bool
	initSchema   string
	initProvider string
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a Matrioska project",
	Long: `Initialize a directory for use with Matrioska.

This command:
  - Creates the .matrioska directory with checkpoints/ and artifacts/
  - Writes a .matrioska.yaml project configuration
  - Adds .matrioska/ to .gitignore when the file exists
  - Checks that the backend API key is available

The directory argument is optional and defaults to the current directory.

Examples:
  matrioska init
  matrioska init ./site --schema ordered
  matrioska init --provider openai`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing .matrioska.yaml")
	initCmd.Flags().StringVar(&initSchema, "schema", string(models.SchemaGraph), "Default plan schema: graph or ordered")
	initCmd.Flags().StringVar(&initProvider, "provider", "anthropic", "Backend provider: anthropic, bedrock or openai")
}

// projectConfig is the subset of settings written to .matrioska.yaml.
type projectConfig struct {
	Backend struct {
		Provider  string `yaml:"provider"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"backend"`
	Pipeline struct {
		Schema string `yaml:"schema"`
	} `yaml:"pipeline"`
	Storage struct {
		BaseDir string `yaml:"base_dir"`
	} `yaml:"storage"`
}

const projectConfigHeader = `# Matrioska project configuration
# Overrides ~/.config/matrioska/config.yaml for this directory.
# See 'matrioska config' for all keys.

`

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	schema, err := models.ParseSchema(initSchema)
	if err != nil {
		return err
	}

	fmt.Printf("Initializing Matrioska in %s...\n\n", absPath)

	defaults := config.Default()
	baseDir := filepath.Join(absPath, defaults.Storage.BaseDir)
	for _, dir := range []string{
		filepath.Join(baseDir, "checkpoints"),
		filepath.Join(baseDir, "artifacts"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	printStatus("✓", "Created .matrioska directory structure", color.FgGreen)

	configPath := filepath.Join(absPath, config.ProjectFileName)
	written, err := writeProjectConfig(configPath, schema, initProvider, initForce)
	if err != nil {
		return fmt.Errorf("writing %s: %w", config.ProjectFileName, err)
	}
	if written {
		printStatus("✓", "Created "+config.ProjectFileName, color.FgGreen)
	} else {
		printStatus("⚠", config.ProjectFileName+" exists (use --force to overwrite)", color.FgYellow)
	}

	if updated, err := updateGitignore(absPath); err != nil {
		return fmt.Errorf("updating .gitignore: %w", err)
	} else if updated {
		printStatus("✓", "Added .matrioska/ to .gitignore", color.FgGreen)
	}

	env := config.KeyEnvVar(initProvider)
	switch {
	case env == "":
		printStatus("✓", "Bedrock uses the AWS credential chain", color.FgGreen)
	case os.Getenv(env) == "":
		printStatus("⚠", env+" not set (you can set it later)", color.FgYellow)
	default:
		printStatus("✓", env+" is set", color.FgGreen)
	}

	fmt.Printf("\n%s Matrioska initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  matrioska run \"your task here\"")
	fmt.Println("  matrioska plan")
	fmt.Println("  matrioska --help")
	return nil
}

// writeProjectConfig writes the project config unless it exists and force is off.
func writeProjectConfig(path string, schema models.Schema, provider string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}

	var pc projectConfig
	defaults := config.Default()
	pc.Backend.Provider = strings.ToLower(provider)
	pc.Backend.MaxTokens = defaults.Backend.MaxTokens
	pc.Pipeline.Schema = string(schema)
	pc.Storage.BaseDir = defaults.Storage.BaseDir

	data, err := yaml.Marshal(&pc)
	if err != nil {
		return false, err
	}
	return true, os.WriteFile(path, append([]byte(projectConfigHeader), data...), 0644)
}

// updateGitignore appends the base dir to an existing .gitignore.
func updateGitignore(repoPath string) (bool, error) {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	data, err := os.ReadFile(gitignorePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	existing := string(data)
	entry := ".matrioska/"
	if strings.Contains(existing, entry) {
		return false, nil
	}

	var b strings.Builder
	b.WriteString(existing)
	if len(existing) > 0 && !strings.HasSuffix(existing, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n# Matrioska\n")
	b.WriteString(entry + "\n")

	return true, os.WriteFile(gitignorePath, []byte(b.String()), 0644)
}
