package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/benmeehan/action-verifier/internal/service_registry"
	"github.com/benmeehan/action-verifier/pkg/httputils"
	"github.com/benmeehan/action-verifier/pkg/vision"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

func newVerifyCommand(opts *globalOptions) *cobra.Command {
	var (
		image        string
		criteria     []string
		description  string
		provider     string
		expectedURL  string
		expectedText string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Grade an existing screenshot against success criteria",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if image == "" {
				return errors.New("--image is required")
			}

			rt, err := loadRuntime(opts)
			if err != nil {
				return err
			}

			screenshot, err := imageReference(image)
			if err != nil {
				return err
			}

			verifier, err := service_registry.NewVisionVerifier(rt.config, rt.logger.With().Str("service", "vision").Logger())
			if err != nil {
				return err
			}

			result := verifier.Verify(cmd.Context(), vision.Request{
				Screenshot:   screenshot,
				Criteria:     criteria,
				Action:       description,
				ExpectedURL:  expectedURL,
				ExpectedText: expectedText,
			}, provider)
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&image, "image", "i", "", "Screenshot URL, data URI or local file")
	cmd.Flags().StringArrayVar(&criteria, "criterion", nil, "Success criterion (repeatable)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the action that was taken")
	cmd.Flags().StringVar(&provider, "provider", "", "Preferred vision provider")
	cmd.Flags().StringVar(&expectedURL, "expected-url", "", "URL the screen is expected to show")
	cmd.Flags().StringVar(&expectedText, "expected-text", "", "Text the screen is expected to contain")
	return cmd
}

// imageReference passes URLs and data URIs through and inlines local files.
func imageReference(image string) (string, error) {
	if httputils.IsDataURI(image) || strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return image, nil
	}

	data, err := os.ReadFile(image)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mediaType := mimetype.Detect(data).String()
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", image, mediaType)
	}
	return httputils.EncodeDataURI(mediaType, data), nil
}
