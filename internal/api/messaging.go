package api

import (
	"net/http"

	"github.com/safar/petplace/internal/store"
)

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var req struct {
		WithUserID int64 `json:"with_user_id"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conversation, err := store.GetOrCreateConversation(r.Context(), s.db, userID, req.WithUserID)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, conversation)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	conversations, err := store.ListConversations(r.Context(), s.db, userID)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, conversations)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	count, err := store.UnreadCount(r.Context(), s.db, userID)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"unread": count})
}

// handleSendMessage accepts JSON for text-only messages and multipart form
// data ("body" plus any number of "files") when attachments are present.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}
	senderID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	req := store.SendMessageRequest{ConversationID: conversationID, SenderID: senderID}

	if isMultipart(r) {
		files, closeFiles, err := formFiles(r, "files")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid upload")
			return
		}
		defer closeFiles()
		req.Body = r.FormValue("body")
		req.Files = files
	} else {
		var body struct {
			Body string `json:"body"`
		}
		if err := decode(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Body = body.Body
	}

	if req.Body == "" && len(req.Files) == 0 {
		respondError(w, http.StatusBadRequest, "message needs a body or an attachment")
		return
	}

	message, err := store.SendMessage(r.Context(), s.db, s.uploader, req)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, message)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}
	readerID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	cursor := r.URL.Query().Get("cursor")
	if _, err := store.DecodeCursor(cursor); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cursor")
		return
	}
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	page, err := store.ListMessages(r.Context(), s.db, conversationID, readerID, cursor, limit)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}
	readerID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	marked, err := store.MarkConversationAsRead(r.Context(), s.db, conversationID, readerID)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"marked": marked})
}
