package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/zentalk-wsnet/pkg/dht"
	"github.com/ZentaChain/zentalk-wsnet/pkg/network"
	"github.com/ZentaChain/zentalk-wsnet/pkg/peercomm"
	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
	"github.com/ZentaChain/zentalk-wsnet/pkg/storage"
)

// PutRequest is the body of POST /api/v1/dht/put
type PutRequest struct {
	Key   string          `json:"key" binding:"required"`
	Value json.RawMessage `json:"value" binding:"required"`
}

// PeerSendRequest is the body of POST /api/v1/peer/send. The target is either
// a stored contact name or an inline contact.
type PeerSendRequest struct {
	Contact string            `json:"contact,omitempty"`
	Target  *protocol.Contact `json:"target,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	// Text is sent as an encrypted peer message when Encrypt is set
	Text    string `json:"text,omitempty"`
	Encrypt bool   `json:"encrypt"`
	// Queue stores the message for later delivery when there is no session
	Queue bool `json:"queue"`
}

// FileOfferRequest is the body of POST /api/v1/peer/file-offer
type FileOfferRequest struct {
	Contact string `json:"contact" binding:"required"`
	peercomm.FileOffer
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
}

func (s *Server) handlePut(c *gin.Context) {
	var req PutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error(), Code: "invalid_request"})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.transport.Put(ctx, req.Key, req.Value); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "stored"})
}

func (s *Server) handleGet(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	value, err := s.transport.Get(ctx, c.Param("key"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: value})
}

// handleFindContact resolves a signed contact record. With ?save=true the
// verified contact is added to the directory.
func (s *Server) handleFindContact(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	contact, err := dht.FindContact(ctx, s.transport, c.Param("pkhash"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if c.Query("save") == "true" && s.db != nil {
		if err := s.db.SaveContact(contact); err != nil {
			s.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: contact})
}

func (s *Server) handlePeerSend(c *gin.Context) {
	var req PeerSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error(), Code: "invalid_request"})
		return
	}

	contact, err := s.resolveContact(req.Contact, req.Target)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var payload any = req.Payload
	if req.Encrypt {
		if s.channel == nil {
			c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Encryption unavailable", Code: "no_channel"})
			return
		}
		pm, err := s.channel.Seal(contact, &peercomm.Payload{Kind: peercomm.KindText, Text: req.Text})
		if err != nil {
			s.respondError(c, err)
			return
		}
		payload = pm
	}

	err = s.transport.PeerSend(contact, payload)
	if err != nil && req.Queue && s.db != nil && req.Contact != "" && isOffline(err) {
		raw, merr := json.Marshal(payload)
		if merr != nil {
			s.respondError(c, merr)
			return
		}
		id, qerr := s.db.QueueMessage(req.Contact, raw, s.config.OutboxTTL)
		if qerr != nil {
			s.respondError(c, qerr)
			return
		}
		c.JSON(http.StatusAccepted, SuccessResponse{Success: true, Data: gin.H{"queued": true, "id": id}, Message: "queued for delivery"})
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "sent"})
}

func (s *Server) handleFileOffer(c *gin.Context) {
	var req FileOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error(), Code: "invalid_request"})
		return
	}
	if s.channel == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Encryption unavailable", Code: "no_channel"})
		return
	}

	contact, err := s.resolveContact(req.Contact, nil)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offer := req.FileOffer
	if err := s.channel.SendFileOffer(contact, &offer); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "offer sent"})
}

func (s *Server) resolveContact(name string, inline *protocol.Contact) (*protocol.Contact, error) {
	if inline != nil {
		return inline, nil
	}
	if name == "" {
		return nil, &network.ValidationError{Field: "contact", Reason: "missing"}
	}
	if s.db == nil {
		return nil, storage.ErrNotFound
	}
	stored, err := s.db.GetContact(name)
	if err != nil {
		return nil, err
	}
	return &stored.Contact, nil
}

func (s *Server) handlePing(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	c.JSON(http.StatusOK, gin.H{"alive": s.transport.Ping(ctx)})
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{"transport": s.transport.Status()}
	if s.db != nil {
		if n, err := s.db.OutboxSize(); err == nil {
			resp["outbox"] = n
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.transport.Status()
	status := http.StatusOK
	if st.State != network.StateConnected {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": st.StateName, "pending": st.Pending})
}

func (s *Server) handleListContacts(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Storage unavailable", Code: "no_storage"})
		return
	}
	contacts, err := s.db.ListContacts()
	if err != nil {
		s.respondError(c, err)
		return
	}
	if contacts == nil {
		contacts = []*storage.Contact{}
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: contacts})
}

func (s *Server) handleSaveContact(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Storage unavailable", Code: "no_storage"})
		return
	}
	var contact protocol.Contact
	if err := c.ShouldBindJSON(&contact); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error(), Code: "invalid_request"})
		return
	}
	if err := s.db.SaveContact(&contact); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: contact})
}

func (s *Server) handleGetContact(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Storage unavailable", Code: "no_storage"})
		return
	}
	contact, err := s.db.GetContact(c.Param("name"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: contact})
}

func (s *Server) handleDeleteContact(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Storage unavailable", Code: "no_storage"})
		return
	}
	if err := s.db.DeleteContact(c.Param("name")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "deleted"})
}

func isOffline(err error) bool {
	return errors.Is(err, network.ErrNoConnection) || errors.Is(err, network.ErrConnectionClosed)
}

// respondError maps transport and storage errors to HTTP responses
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"

	var (
		remote *protocol.RemoteError
		verr   *network.ValidationError
	)
	switch {
	case errors.As(err, &verr),
		errors.Is(err, storage.ErrInvalidContact),
		errors.Is(err, peercomm.ErrMissingPublicKey),
		errors.Is(err, peercomm.ErrInvalidFileOffer):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, dht.ErrInvalidSignature),
		errors.Is(err, dht.ErrExpiredEntry),
		errors.Is(err, dht.ErrKeyMismatch),
		errors.Is(err, dht.ErrPublisherMismatch):
		status, code = http.StatusUnprocessableEntity, "invalid_record"
	case errors.Is(err, network.ErrNotAuthenticated):
		status, code = http.StatusForbidden, "not_authenticated"
	case isOffline(err), errors.Is(err, network.ErrDisposed):
		status, code = http.StatusServiceUnavailable, "no_connection"
	case errors.Is(err, network.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &remote):
		if remote.IsPeerUnreachable() {
			status, code = http.StatusNotFound, "peer_unreachable"
		} else {
			status, code = http.StatusBadGateway, "remote_error"
		}
	case errors.Is(err, storage.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	}

	if status >= 500 {
		s.log.Errorw("request error", "path", c.Request.URL.Path, "error", err, "request_id", c.GetString("request_id"))
	}
	c.JSON(status, ErrorResponse{Error: http.StatusText(status), Message: err.Error(), Code: code})
}
