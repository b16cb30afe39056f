// Package paramstore reads playbook documents from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

var ErrMissingValue = errors.New("paramstore: parameter has no value")

// ssmAPI is the slice of *ssm.Client used here.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is what playbook loading depends on.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
	LookupParameter(ctx context.Context, name string) (string, bool, error)
}

type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter returns the decrypted value of a required parameter.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get %s: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingValue, name)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// LookupParameter is GetParameter for optional parameters: a parameter that
// does not exist reports ok=false with no error.
func (c *Client) LookupParameter(ctx context.Context, name string) (string, bool, error) {
	v, err := c.GetParameter(ctx, name)
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// Join builds a parameter name under prefix.
func Join(prefix, name string) string {
	return strings.TrimRight(strings.TrimSpace(prefix), "/") + "/" + strings.TrimLeft(name, "/")
}
