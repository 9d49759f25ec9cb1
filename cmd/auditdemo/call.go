package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rainbow-me/api-audit/common/correlation"
	"github.com/rainbow-me/api-audit/common/logger"
	"github.com/rainbow-me/api-audit/grpc/health"
	apihttp "github.com/rainbow-me/api-audit/http"
	restyinterceptors "github.com/rainbow-me/api-audit/http/interceptors/resty"
)

type callOptions struct {
	ginURL   string
	muxURL   string
	grpcAddr string
	apiKey   string
	timeout  time.Duration
}

func newCallCommand(_ *rootOptions) *cobra.Command {
	opts := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Call every audited endpoint once and print the audit ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return callAll(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.ginURL, "gin", "http://localhost:8080", "gin server base URL")
	cmd.Flags().StringVar(&opts.muxURL, "mux", "http://localhost:8081", "net/http server base URL")
	cmd.Flags().StringVar(&opts.grpcAddr, "grpc", "localhost:9090", "gRPC server address")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "gRPC API key")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per call timeout")
	return cmd
}

func callAll(cmd *cobra.Command, opts *callOptions) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.ContextWithLogger(cmd.Context(), log)
	ctx = correlation.ContextWithRequestID(ctx, uuid.NewString())
	ctx = correlation.SetKey(ctx, "client", "auditdemo-call")

	client := apihttp.NewRestyWithClient(&http.Client{Timeout: opts.timeout}, log)
	out := cmd.OutOrStdout()

	resp, err := client.R().SetContext(ctx).
		SetBody(order{Quantity: 3}).
		Post(opts.ginURL + "/orders/42")
	if err != nil {
		return errors.Wrap(err, "gin call failed")
	}
	_, _ = fmt.Fprintf(out, "gin   %d audit=%s\n", resp.StatusCode(), restyinterceptors.AuditID(resp))

	resp, err = client.R().SetContext(ctx).
		SetBody(order{ID: "43", Quantity: 1}).
		Post(opts.muxURL + "/orders")
	if err != nil {
		return errors.Wrap(err, "net/http call failed")
	}
	_, _ = fmt.Fprintf(out, "mux   %d audit=%s\n", resp.StatusCode(), restyinterceptors.AuditID(resp))

	id, err := callGRPC(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "grpc call failed")
	}
	_, _ = fmt.Fprintf(out, "grpc  OK audit=%s\n", id)
	return nil
}

func callGRPC(ctx context.Context, opts *callOptions) (string, error) {
	checker, err := health.NewHealthChecker(
		health.WithTarget(opts.grpcAddr),
		health.WithAPIKey(opts.apiKey),
		health.WithDialTimeout(opts.timeout),
	)
	if err != nil {
		return "", err
	}
	defer func() { _ = checker.Close() }()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	res, err := checker.Check(ctx, "orders")
	if err != nil {
		return "", err
	}
	return res.AuditID, nil
}
