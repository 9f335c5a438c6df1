package databases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/databases/mocks"
	"github.com/linesmerrill/commute-permit-api/models"
)

func TestMongoRecordStore_Get(t *testing.T) {
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelperMissing databases.SingleResultHelper
	var srHelperCorrect databases.SingleResultHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelperMissing = &mocks.SingleResultHelper{}
	srHelperCorrect = &mocks.SingleResultHelper{}

	srHelperMissing.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(mongo.ErrNoDocuments)

	srHelperCorrect.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.Permit)
		arg.ID = "mocked-permit"
	})

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": "missing"}).
		Return(srHelperMissing)
	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": "mocked-permit"}).
		Return(srHelperCorrect)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", databases.PermitTable).Return(collectionHelper)

	permitDB := databases.NewPermitDatabase(databases.NewMongoRecordStore(dbHelper))

	_, err := permitDB.FindOne(context.Background(), "missing")
	assert.True(t, errors.Is(err, databases.ErrNotFound))

	permit, err := permitDB.FindOne(context.Background(), "mocked-permit")
	assert.NoError(t, err)
	assert.Equal(t, "mocked-permit", permit.ID)
}

func TestMongoRecordStore_ListTranslatesPredicates(t *testing.T) {
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var cursorHelper databases.CursorHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	cursorHelper = &mocks.CursorHelper{}

	want := bson.M{
		"deleted_flag":    bson.M{"$ne": true},
		"employee_id":     bson.M{"$eq": "e1"},
		"approval_status": bson.M{"$eq": models.ApprovalApproved},
	}
	cursorHelper.(*mocks.CursorHelper).
		On("All", mock.Anything, mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.License)
		*arg = []models.License{{LicenseNumber: "301234567890"}}
	})
	collectionHelper.(*mocks.CollectionHelper).
		On("Find", mock.Anything, want, mock.Anything).
		Return(cursorHelper, nil)
	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", databases.LicenseTable).Return(collectionHelper)

	licenseDB := databases.NewLicenseDatabase(databases.NewMongoRecordStore(dbHelper))
	licenses, err := licenseDB.FindActive(context.Background(),
		databases.Eq("employee_id", "e1"),
		databases.Eq("approval_status", models.ApprovalApproved),
	)
	assert.NoError(t, err)
	assert.Len(t, licenses, 1)
	collectionHelper.(*mocks.CollectionHelper).AssertExpectations(t)
}

func TestMongoRecordStore_ListMergesOperatorsOnOneField(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursorHelper := &mocks.CursorHelper{}

	cursorHelper.On("All", mock.Anything, mock.Anything).Return(nil)
	collectionHelper.
		On("Find", mock.Anything, bson.M{"count": bson.M{"$gte": 1, "$lt": 5}}, mock.Anything).
		Return(cursorHelper, nil)
	dbHelper.On("Collection", "records").Return(collectionHelper)

	var out []bson.M
	err := databases.NewMongoRecordStore(dbHelper).List(context.Background(), "records",
		databases.Where(databases.Gte("count", 1), databases.Lt("count", 5)), &out)
	assert.NoError(t, err)
	collectionHelper.AssertExpectations(t)
}

func TestMongoRecordStore_Update(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	isSet := mock.MatchedBy(func(update bson.M) bool {
		set, ok := update["$set"].(bson.M)
		return ok && set["status"] == models.PermitRevoked && set["updated_at"] != nil
	})
	collectionHelper.On("UpdateOne", mock.Anything, bson.M{"_id": "p1"}, isSet).Return(int64(1), nil)
	collectionHelper.On("UpdateOne", mock.Anything, bson.M{"_id": "missing"}, isSet).Return(int64(0), nil)
	collectionHelper.On("UpdateOne", mock.Anything, bson.M{"_id": "broken"}, isSet).Return(int64(0), errors.New("mocked-error"))
	dbHelper.On("Collection", databases.PermitTable).Return(collectionHelper)

	permitDB := databases.NewPermitDatabase(databases.NewMongoRecordStore(dbHelper))
	fields := databases.Fields{"status": models.PermitRevoked}

	assert.NoError(t, permitDB.UpdateOne(context.Background(), "p1", fields))
	assert.True(t, errors.Is(permitDB.UpdateOne(context.Background(), "missing", fields), databases.ErrNotFound))

	err := permitDB.UpdateOne(context.Background(), "broken", fields)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, databases.ErrNotFound))
}

func TestMongoRecordStore_Create(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	var inserted bson.M
	collectionHelper.On("InsertOne", mock.Anything, mock.Anything).
		Return("ignored", nil).Run(func(args mock.Arguments) {
		inserted = args.Get(1).(bson.M)
	})
	dbHelper.On("Collection", databases.EmployeeTable).Return(collectionHelper)

	id, err := databases.NewEmployeeDatabase(databases.NewMongoRecordStore(dbHelper)).
		InsertOne(context.Background(), models.Employee{Name: "Taro", Email: "taro@example.com"})
	assert.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, inserted["_id"])
	assert.NotNil(t, inserted["created_at"])
}
