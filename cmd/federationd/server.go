// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bureau-foundation/homeserver/federation"
	"github.com/bureau-foundation/homeserver/lib/ref"
)

// server exposes the federation service over the Matrix
// server-to-server HTTP API.
type server struct {
	service *federation.Service
	logger  *slog.Logger
}

func newServer(service *federation.Service, logger *slog.Logger) *server {
	return &server{service: service, logger: logger}
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_matrix/federation/v1/make_knock/{roomID}/{userID}", s.handleMakeKnock)
	mux.HandleFunc("GET /_matrix/federation/v1/state/{roomID}", s.handleState)
	return mux
}

func (s *server) handleMakeKnock(w http.ResponseWriter, r *http.Request) {
	origin, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	room, err := ref.ParseRoomID(r.PathValue("roomID"))
	if err != nil {
		s.writeError(w, federation.BadJSON("Invalid room ID."))
		return
	}
	user, err := ref.ParseUserID(r.PathValue("userID"))
	if err != nil {
		s.writeError(w, federation.BadJSON("Invalid user ID."))
		return
	}
	versions := parseSupportedVersions(r.URL.Query()["ver"])

	response, err := s.service.CreateKnock(r.Context(), federation.KnockRequest{
		Origin:            origin,
		Room:              room,
		User:              user,
		SupportedVersions: versions,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"room_version": response.RoomVersion,
		"event":        response.Event,
	})
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	origin, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	room, err := ref.ParseRoomID(r.PathValue("roomID"))
	if err != nil {
		s.writeError(w, federation.BadJSON("Invalid room ID."))
		return
	}
	event, err := ref.ParseEventID(r.URL.Query().Get("event_id"))
	if err != nil {
		s.writeError(w, federation.BadJSON("Invalid event ID."))
		return
	}

	response, err := s.service.RoomState(r.Context(), federation.RoomStateRequest{
		Origin: origin,
		Room:   room,
		Event:  event,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response)
}

// authenticate extracts the origin server from the request's X-Matrix
// authorization header. On failure it writes the error response and
// returns ok=false.
func (s *server) authenticate(w http.ResponseWriter, r *http.Request) (ref.ServerName, bool) {
	origin, err := parseXMatrixOrigin(r.Header.Get("Authorization"))
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{
			"errcode": "M_UNAUTHORIZED",
			"error":   "Missing or invalid authorization header.",
		})
		return ref.ServerName{}, false
	}
	return origin, true
}

// parseXMatrixOrigin pulls the origin parameter out of an
// 'X-Matrix origin="...",key="...",sig="..."' authorization header.
func parseXMatrixOrigin(header string) (ref.ServerName, error) {
	scheme, params, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "X-Matrix") {
		return ref.ServerName{}, fmt.Errorf("not an X-Matrix authorization header")
	}
	for _, part := range strings.Split(params, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || key != "origin" {
			continue
		}
		return ref.ParseServerName(strings.Trim(value, `"`))
	}
	return ref.ServerName{}, fmt.Errorf("authorization header has no origin")
}

func parseSupportedVersions(raw []string) []federation.RoomVersion {
	versions := make([]federation.RoomVersion, 0, len(raw))
	for _, v := range raw {
		version, err := federation.ParseRoomVersion(v)
		if err != nil {
			// Versions this server has never heard of cannot match the
			// room's version anyway; skip rather than reject so newer
			// peers are not locked out.
			continue
		}
		versions = append(versions, version)
	}
	return versions
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	var fedErr *federation.Error
	if !errors.As(err, &fedErr) {
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"errcode": "M_UNKNOWN",
			"error":   "Internal server error.",
		})
		return
	}
	s.writeJSON(w, fedErr.StatusCode, fedErr)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}
