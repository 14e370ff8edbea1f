// Command azsdkgen is a small demonstration CLI wiring the specification
// discovery/resolution pipeline (pkg/spec, pkg/spec/ref, pkg/spec/operation)
// to the authenticated HTTP execution pipeline (pkg/auth, pkg/client): point
// it at a checkout of an OpenAPI specs repository and an operation id, and
// it resolves the operation's shape, acquires a token, and issues the call.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nimrody/azure-simple-sdk/pkg/auth"
	"github.com/nimrody/azure-simple-sdk/pkg/client"
	"github.com/nimrody/azure-simple-sdk/pkg/spec"
	"github.com/nimrody/azure-simple-sdk/pkg/spec/operation"
	"github.com/nimrody/azure-simple-sdk/pkg/spec/ref"
)

const (
	product = "azsdkgen"
	version = "0.1.0"
)

func main() {
	var (
		app          = kingpin.New(filepath.Base(os.Args[0]), "Discover and execute an Azure management operation.").DefaultEnvars()
		debug        = app.Flag("debug", "Run with debug logging.").Short('d').Bool()
		specRoot     = app.Flag("spec-root", "Root of a checked-out azure-rest-api-specs-style repository.").Required().ExistingDir()
		operationID  = app.Flag("operation", "operationId to resolve, e.g. VirtualMachines_Get.").Required().String()
		baseURL      = app.Flag("base-url", "Base URL to send the resolved operation against.").Default("https://management.azure.com").String()
		apiVersion   = app.Flag("api-version", "api-version query parameter, if the operation needs one.").String()
		tenantID     = app.Flag("tenant-id", "Azure AD tenant id.").Envar("AZURE_TENANT_ID").String()
		clientID     = app.Flag("client-id", "Azure AD application (client) id.").Envar("AZURE_CLIENT_ID").String()
		clientSecret = app.Flag("client-secret", "Azure AD application client secret.").Envar("AZURE_CLIENT_SECRET").String()
		scope        = app.Flag("scope", "OAuth2 scope requested for the client-credentials grant.").Default("https://management.azure.com/.default").String()
		timeout      = app.Flag("timeout", "Per-attempt request timeout.").Default("30s").Duration()
	)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := zapcore.InfoLevel
	if *debug {
		level = zapcore.DebugLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	log, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	index := spec.NewIndex(*specRoot, log)
	file, ok := index.FindBest(*operationID)
	if !ok {
		log.Fatal("operation not found in specification tree", zap.String("operationId", *operationID))
	}

	resolver := ref.New(log)
	extractor := operation.New(resolver, log)
	record := extractor.Extract(file, *operationID)
	if record == nil {
		log.Fatal("operation document failed to parse", zap.String("operationId", *operationID), zap.String("file", file.Path))
	}

	log.Info("resolved operation",
		zap.String("operationId", record.OperationID),
		zap.String("method", record.HTTPMethod),
		zap.String("path", record.PathTemplate),
		zap.String("specFile", file.Path),
	)

	provider := auth.NewOAuth2Provider(*clientID, *clientSecret, *tenantID, *scope)
	executor := client.NewExecutor(provider, nil, client.DefaultRetryPolicy(), product, version, log)

	builder := executor.NewBuilder().
		Method(record.HTTPMethod).
		URL(*baseURL + record.PathTemplate).
		Timeout(*timeout)
	if *apiVersion != "" {
		builder = builder.Version(*apiVersion)
	}
	req, err := builder.Build()
	if err != nil {
		log.Fatal("cannot build request", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*(*timeout))
	defer cancel()

	var out interface{}
	resp, err := executor.Execute(ctx, req, &out)
	if err != nil {
		log.Fatal("operation failed", zap.Error(err))
	}

	log.Info("operation succeeded", zap.Int("status", resp.StatusCode))
	fmt.Printf("%v\n", out)
}
