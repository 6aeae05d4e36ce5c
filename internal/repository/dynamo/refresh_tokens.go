package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/authcore/authcore/internal/models"
	"github.com/authcore/authcore/internal/repository"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

type RefreshTokenRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewRefreshTokenRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func tokenPK(hash string) string {
	return "RTOKEN#" + hash
}

// Insert writes the token item keyed by its hash. The conditional put is
// what enforces hash uniqueness in a single-table layout: a racing insert
// of the same hash fails loudly instead of silently duplicating.
func (r *RefreshTokenRepository) Insert(ctx context.Context, token *models.RefreshToken) error {
	item, err := attributevalue.MarshalMap(token)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal refresh token for DynamoDB")
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: tokenPK(token.TokenHash)}
	item["SK"] = &types.AttributeValueMemberS{Value: metadataSK}
	// Table TTL attribute so DynamoDB prunes long-expired items on its own.
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(token.ExpiresAt.Unix(), 10)}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return repository.ErrDuplicate
		}
		r.logger.WithError(err).Error("Failed to store refresh token in DynamoDB")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tokenPK(hash)},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get refresh token from DynamoDB")
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if result.Item == nil {
		return nil, repository.ErrNotFound
	}

	var token models.RefreshToken
	if err := attributevalue.UnmarshalMap(result.Item, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	// Revoked and expired items answer exactly like absent ones.
	if token.Revoked || !token.ExpiresAt.After(now) {
		return nil, repository.ErrNotFound
	}
	return &token, nil
}

func (r *RefreshTokenRepository) RevokeByHash(ctx context.Context, hash string, now time.Time) (bool, error) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tokenPK(hash)},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
		UpdateExpression:    aws.String("SET revoked = :true, revoked_at = :now"),
		ConditionExpression: aws.String("attribute_exists(PK) AND revoked = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":  &types.AttributeValueMemberBOOL{Value: true},
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":now":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// Already revoked or never existed; either way nothing changed.
			return false, nil
		}
		r.logger.WithError(err).Error("Failed to revoke refresh token in DynamoDB")
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return true, nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	tokens, err := r.scanUserTokens(ctx, userID)
	if err != nil {
		return 0, err
	}

	var revoked int64
	for _, token := range tokens {
		changed, err := r.RevokeByHash(ctx, token.TokenHash, now)
		if err != nil {
			return revoked, err
		}
		if changed {
			revoked++
		}
	}
	return revoked, nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time, revokedRetention time.Duration) (int64, error) {
	cutoff := now.Add(-revokedRetention)
	result, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("begins_with(PK, :prefix) AND (expires_at < :now OR (revoked = :true AND revoked_at < :cutoff))"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: "RTOKEN#"},
			":now":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":cutoff": &types.AttributeValueMemberS{Value: cutoff.Format(time.RFC3339Nano)},
			":true":   &types.AttributeValueMemberBOOL{Value: true},
		},
		ProjectionExpression: aws.String("PK, SK"),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to scan expired refresh tokens")
		return 0, fmt.Errorf("failed to scan expired tokens: %w", err)
	}

	var deleted int64
	for _, item := range result.Items {
		_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.tableName),
			Key: map[string]types.AttributeValue{
				"PK": item["PK"],
				"SK": item["SK"],
			},
		})
		if err != nil {
			r.logger.WithError(err).Error("Failed to delete expired refresh token")
			return deleted, fmt.Errorf("failed to delete expired token: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

func (r *RefreshTokenRepository) scanUserTokens(ctx context.Context, userID int64) ([]models.RefreshToken, error) {
	result, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("begins_with(PK, :prefix) AND user_id = :user_id AND revoked = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix":  &types.AttributeValueMemberS{Value: "RTOKEN#"},
			":user_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(userID, 10)},
			":false":   &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to scan user refresh tokens")
		return nil, fmt.Errorf("failed to scan user tokens: %w", err)
	}

	var tokens []models.RefreshToken
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tokens: %w", err)
	}
	return tokens, nil
}

var _ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
