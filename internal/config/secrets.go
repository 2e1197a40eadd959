package config

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsGetter is the subset of the Secrets Manager client used here.
type secretsGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ApplyDBSecret overrides the leaderboard database credentials with the JSON
// secret stored under secretARN (keys: host, port, username, password, dbname).
func ApplyDBSecret(ctx context.Context, cfg *Config, secretARN string) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	return applyDBSecret(ctx, secretsmanager.NewFromConfig(awsCfg), cfg, secretARN)
}

func applyDBSecret(ctx context.Context, client secretsGetter, cfg *Config, secretARN string) error {
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretARN,
	})
	if err != nil {
		return fmt.Errorf("get secret %s: %w", secretARN, err)
	}
	if result.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", secretARN)
	}

	var creds map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &creds); err != nil {
		return fmt.Errorf("parse secret %s: %w", secretARN, err)
	}

	pg := &cfg.Database.Postgres
	for key, dst := range map[string]*string{
		"host":     &pg.Host,
		"port":     &pg.Port,
		"username": &pg.User,
		"password": &pg.Password,
		"dbname":   &pg.Database,
	} {
		if v := creds[key]; v != "" {
			*dst = v
		}
	}
	return nil
}
