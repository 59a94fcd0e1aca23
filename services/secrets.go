package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

type parameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewSSMClient builds a Parameter Store client from the default credential chain.
func NewSSMClient(ctx context.Context, region string) (*ssm.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return ssm.NewFromConfig(cfg), nil
}

// ResolveAdminToken returns fallback unless param names a Parameter Store entry,
// in which case the decrypted parameter value wins.
func ResolveAdminToken(ctx context.Context, client parameterGetter, param, fallback string) (string, error) {
	if param == "" {
		return fallback, nil
	}
	if client == nil {
		return "", errors.New("no parameter store client configured")
	}
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", param, err)
	}
	if out.Parameter == nil {
		return "", fmt.Errorf("parameter %s has no value", param)
	}
	token := strings.TrimSpace(aws.ToString(out.Parameter.Value))
	if token == "" {
		return "", fmt.Errorf("parameter %s is empty", param)
	}
	return token, nil
}
