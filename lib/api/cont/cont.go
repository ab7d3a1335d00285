package cont

import (
	"context"

	"keyverify/entity"
)

type ctxKey string

const UserDataKey ctxKey = "userData"

func PutUser(c context.Context, user *entity.ApiUser) context.Context {
	return context.WithValue(c, UserDataKey, *user)
}

func GetUser(c context.Context) *entity.ApiUser {
	user, ok := c.Value(UserDataKey).(entity.ApiUser)
	if !ok {
		return &entity.ApiUser{}
	}
	return &user
}
