package handlers_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"hama/estate/internal/api/handlers"
	"hama/estate/internal/models"
	"hama/estate/internal/services"
)

func conversationEngine(svc *MockConversationService, userID string) *gin.Engine {
	h := handlers.NewConversationHandler(svc)
	r := newEngine(userID, models.RoleClient)
	r.GET("/v1/conversations", h.List)
	r.POST("/v1/conversations", h.Start)
	r.GET("/v1/conversations/:id/messages", h.ListMessages)
	r.POST("/v1/conversations/:id/messages", h.SendMessage)
	r.POST("/v1/conversations/:id/read", h.MarkRead)
	return r
}

func TestConversationHandler_List(t *testing.T) {
	svc := new(MockConversationService)
	r := conversationEngine(svc, "u1")
	svc.On("ListConversations", mock.Anything, "u1").
		Return([]models.Conversation{{ID: "c1", Participants: []string{"u1", "ag1"}}}, nil).Once()

	w := doJSON(r, http.MethodGet, "/v1/conversations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["conversations"], 1)
}

func TestConversationHandler_Start(t *testing.T) {
	svc := new(MockConversationService)
	r := conversationEngine(svc, "u1")

	svc.On("StartConversation", mock.Anything, "u1", "p1", "Hello").
		Return(&models.Conversation{ID: "c1"}, &models.Message{ID: "m1", ConversationID: "c1", Text: "Hello"}, nil).Once()
	w := doJSON(r, http.MethodPost, "/v1/conversations", map[string]string{"propertyId": "p1", "text": "Hello"})
	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "c1", body["conversation"].(map[string]interface{})["id"])
	assert.Equal(t, "m1", body["message"].(map[string]interface{})["id"])

	svc.On("StartConversation", mock.Anything, "u1", "p2", "Hello").Return(nil, nil, services.ErrPropertyOwnerUnknown).Once()
	w = doJSON(r, http.MethodPost, "/v1/conversations", map[string]string{"propertyId": "p2", "text": "Hello"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(r, http.MethodPost, "/v1/conversations", map[string]string{"text": "Hello"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationHandler_ListMessages(t *testing.T) {
	svc := new(MockConversationService)
	r := conversationEngine(svc, "u1")

	svc.On("ListMessages", mock.Anything, "c1", "u1", int64(services.DefaultMessagePage)).
		Return([]models.Message{{ID: "m1"}, {ID: "m2"}}, nil).Once()
	w := doJSON(r, http.MethodGet, "/v1/conversations/c1/messages", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["messages"], 2)

	svc.On("ListMessages", mock.Anything, "c1", "u1", int64(10)).Return([]models.Message{}, nil).Once()
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/v1/conversations/c1/messages?limit=10", nil).Code)

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/v1/conversations/c1/messages?limit=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/v1/conversations/c1/messages?limit=abc", nil).Code)

	svc.On("ListMessages", mock.Anything, "c2", "u1", int64(services.DefaultMessagePage)).Return(nil, services.ErrNotParticipant).Once()
	assert.Equal(t, http.StatusForbidden, doJSON(r, http.MethodGet, "/v1/conversations/c2/messages", nil).Code)
	svc.AssertExpectations(t)
}

func TestConversationHandler_SendMessage(t *testing.T) {
	svc := new(MockConversationService)
	r := conversationEngine(svc, "u1")

	svc.On("SendMessage", mock.Anything, "c1", "u1", "Is it furnished?").
		Return(&models.Message{ID: "m3", SenderID: "u1", Text: "Is it furnished?"}, nil).Once()
	w := doJSON(r, http.MethodPost, "/v1/conversations/c1/messages", map[string]string{"text": "Is it furnished?"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "m3", decode(t, w)["id"])

	svc.On("SendMessage", mock.Anything, "c9", "u1", "hi").Return(nil, services.ErrConversationNotFound).Once()
	w = doJSON(r, http.MethodPost, "/v1/conversations/c9/messages", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.On("SendMessage", mock.Anything, "c1", "u1", "   ").Return(nil, services.ErrEmptyMessage).Once()
	w = doJSON(r, http.MethodPost, "/v1/conversations/c1/messages", map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestConversationHandler_MarkRead(t *testing.T) {
	svc := new(MockConversationService)
	r := conversationEngine(svc, "ag1")
	svc.On("MarkRead", mock.Anything, "c1", "ag1").Return(3, nil).Once()

	w := doJSON(r, http.MethodPost, "/v1/conversations/c1/read", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["updated"])
}
