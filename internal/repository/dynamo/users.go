// Package dynamo implements the repository contracts over a single
// DynamoDB table. User records live under USER#<id>; email, username, and
// phone resolve through pointer items so each user has one canonical item.
package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/authcore/authcore/internal/models"
	"github.com/authcore/authcore/internal/repository"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

const metadataSK = "METADATA"

type UserRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewUserRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func userPK(id int64) string {
	return "USER#" + strconv.FormatInt(id, 10)
}

func emailPK(email string) string {
	return "USEREMAIL#" + strings.ToLower(email)
}

func usernamePK(username string) string {
	return "USERNAME#" + strings.ToLower(username)
}

func phonePK(phone string) string {
	return "USERPHONE#" + phone
}

func (r *UserRepository) getItem(ctx context.Context, pk string) (map[string]types.AttributeValue, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get item from DynamoDB")
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return result.Item, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	item, err := r.getItem(ctx, userPK(id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, repository.ErrNotFound
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(item, &user); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// getByPointer follows a pointer item (alternate key -> user id) and then
// loads the canonical user item.
func (r *UserRepository) getByPointer(ctx context.Context, pk string) (*models.User, error) {
	item, err := r.getItem(ctx, pk)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, repository.ErrNotFound
	}

	var pointer struct {
		UserID int64 `dynamodbav:"user_id"`
	}
	if err := attributevalue.UnmarshalMap(item, &pointer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pointer item: %w", err)
	}
	return r.GetByID(ctx, pointer.UserID)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getByPointer(ctx, emailPK(email))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getByPointer(ctx, usernamePK(username))
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.getByPointer(ctx, phonePK(phone))
}

func (r *UserRepository) GetCredential(ctx context.Context, id int64) (string, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if user.PasswordHash == "" {
		return "", repository.ErrNotFound
	}
	return user.PasswordHash, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
