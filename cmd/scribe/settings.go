package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/medicalscribe/scribe/internal/backend"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/tui"
	"github.com/spf13/cobra"
)

// settingsCmd manages the AI settings held by the backend service.
func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the backend's AI provider settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the backend AI settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd.Context())
			defer cancel()
			s, err := client.LLMSettings(ctx)
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), s)
			return nil
		},
	})

	var provider, apiKey, transcriptionModel, chatModel string
	set := &cobra.Command{
		Use:   "set",
		Short: "Change backend AI settings; omitted flags stay as they are",
		RunE: func(cmd *cobra.Command, args []string) error {
			update := models.LLMSettingsUpdate{}
			flags := cmd.Flags()
			if flags.Changed("provider") {
				update.Provider = &provider
			}
			if flags.Changed("api-key") {
				update.APIKey = &apiKey
			}
			if flags.Changed("transcription-model") {
				update.TranscriptionModel = &transcriptionModel
			}
			if flags.Changed("chat-model") {
				update.ChatModel = &chatModel
			}
			if update == (models.LLMSettingsUpdate{}) {
				return fmt.Errorf("nothing to change")
			}

			client, err := backendClient()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd.Context())
			defer cancel()
			s, err := client.UpdateLLMSettings(ctx, update)
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), s)
			return nil
		},
	}
	set.Flags().StringVar(&provider, "provider", "", "AI provider (openai, groq)")
	set.Flags().StringVar(&apiKey, "api-key", "", "provider API key")
	set.Flags().StringVar(&transcriptionModel, "transcription-model", "", "model used for audio")
	set.Flags().StringVar(&chatModel, "chat-model", "", "model used for insights and documents")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Check that the backend can reach its AI provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd.Context())
			defer cancel()
			res, err := client.TestLLMConnection(ctx)
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("connection test failed: %s", res.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.StyleSuccess.Render(fmt.Sprintf("ok: %s (%s)", res.Message, res.ModelTested)))
			return nil
		},
	})

	return cmd
}

func backendClient() (*backend.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return backend.New(cfg.Backend.URL, cfg.Backend.Timeout), nil
}

func printSettings(w io.Writer, s *models.LLMSettings) {
	key := "not set"
	if s.HasAPIKey {
		key = s.APIKeyMasked
	}
	fmt.Fprintf(w, "Provider:            %s\n", s.Provider)
	fmt.Fprintf(w, "API key:             %s\n", key)
	fmt.Fprintf(w, "Transcription model: %s\n", s.TranscriptionModel)
	fmt.Fprintf(w, "Chat model:          %s\n", s.ChatModel)
	if len(s.AvailableTranscriptionModels) > 0 {
		fmt.Fprintf(w, "Available audio:     %s\n", strings.Join(s.AvailableTranscriptionModels, ", "))
	}
	if len(s.AvailableChatModels) > 0 {
		fmt.Fprintf(w, "Available chat:      %s\n", strings.Join(s.AvailableChatModels, ", "))
	}
}
