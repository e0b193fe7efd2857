package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/chatrelay/internal/commander"
)

func newLambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda handler behind API Gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			lambda.Start(newLambdaHandler(a.processor, cfg.TelegramWebhookSecret, logger))
			return nil
		},
	}
}

type lambdaHandler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// newLambdaHandler answers authenticated invocations with 200: "Success" when
// the update was handled, "Error" otherwise. A secret mismatch gets 401.
func newLambdaHandler(p updateProcessor, secret string, logger *slog.Logger) lambdaHandler {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		if !secretMatches(headerValue(req.Headers, secretHeader), secret) {
			logger.Warn("webhook_secret_mismatch", "source_ip", req.RequestContext.Identity.SourceIP)
			return events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized, Body: "Unauthorized"}, nil
		}
		body := []byte(req.Body)
		if req.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				logger.Error("lambda_body_decode_failed", "error", err)
				return lambdaResponse("Error"), nil
			}
			body = decoded
		}
		var update commander.Update
		if err := json.Unmarshal(body, &update); err != nil {
			logger.Error("lambda_update_decode_failed", "error", err)
			return lambdaResponse("Error"), nil
		}
		if err := p.Process(context.WithoutCancel(ctx), update); err != nil {
			logger.Error("update_failed", "update_id", update.UpdateID, "error", err)
			return lambdaResponse("Error"), nil
		}
		return lambdaResponse("Success"), nil
	}
}

func lambdaResponse(body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: body}
}

// headerValue looks name up case-insensitively; HTTP APIs lowercase header
// names while REST APIs keep them as sent.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
