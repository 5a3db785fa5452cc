package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/deskhand/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("deskhand setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.DataDir = prompt(scanner, "Data directory", cfg.DataDir)
		cfg.Keywords = config.ParseKeywords(prompt(scanner, "Keywords (comma separated)", strings.Join(cfg.Keywords, ",")))

		cfg.WhatsApp.Enabled = promptBool(scanner, "Watch WhatsApp", cfg.WhatsApp.Enabled)
		cfg.LinkedIn.Enabled = promptBool(scanner, "Watch LinkedIn", cfg.LinkedIn.Enabled)
		if cfg.LinkedIn.Enabled {
			cfg.LinkedIn.Email = prompt(scanner, "LinkedIn email (optional)", cfg.LinkedIn.Email)
		}

		cfg.Admin.WhatsApp = prompt(scanner, "Your WhatsApp number for forwards (optional)", cfg.Admin.WhatsApp)
		cfg.Forward.ToWhatsApp = cfg.Admin.WhatsApp != ""

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		if cfg.Telegram.Token != "" {
			cfg.Admin.TelegramChatID = prompt(scanner, "Telegram chat id for forwards", cfg.Admin.TelegramChatID)
			cfg.Forward.ToTelegram = cfg.Admin.TelegramChatID != ""
		}

		cfg.LLM.APIKey = prompt(scanner, "LLM API key for reply drafts (optional)", cfg.LLM.APIKey)
		if cfg.LLM.APIKey != "" {
			cfg.LLM.Model = prompt(scanner, "LLM model name", cfg.LLM.Model)
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

func promptBool(scanner *bufio.Scanner, label string, defaultVal bool) bool {
	def := "n"
	if defaultVal {
		def = "y"
	}
	switch strings.ToLower(prompt(scanner, label+" (y/n)", def)) {
	case "y", "yes", "true":
		return true
	}
	return false
}
