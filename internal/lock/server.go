// Copyright 2026 The driftfs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lock

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/driftfs/driftfs/internal/logger"
)

// NewServer builds the four-route HTTP lock surface over ix. Every route is
// a plain GET returning a bare-text token body ("acquired"/"released"/
// "fail"); there is no authentication, matching a lock service meant to run
// only on a trusted LAN.
func NewServer(ix *Index) http.Handler {
	r := mux.NewRouter()

	// project is matched greedily (:.*) because canonical project names are
	// slash-separated paths, not single path segments.
	r.HandleFunc("/lock/acquire/{machine}/{project:.*}", acquireProjectHandler(ix)).Methods(http.MethodGet)
	r.HandleFunc("/lock/release/{machine}/{project:.*}", releaseProjectHandler(ix)).Methods(http.MethodGet)
	r.HandleFunc("/index/lock/acquire/{machine}", acquireIndexHandler(ix)).Methods(http.MethodGet)
	r.HandleFunc("/index/lock/release/{machine}", releaseIndexHandler(ix)).Methods(http.MethodGet)

	return r
}

func canonicalProject(raw string) (string, error) {
	return url.PathUnescape(raw)
}

func acquireProjectHandler(ix *Index) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		machine := vars["machine"]
		project, err := canonicalProject(vars["project"])
		if err != nil {
			http.Error(w, "fail", http.StatusBadRequest)
			return
		}

		res, err := ix.Acquire(project, machine, false)
		if err != nil {
			logger.Errorf("lock server: acquire %s/%s: %v", machine, project, err)
			http.Error(w, "fail", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, res.String())
	}
}

func releaseProjectHandler(ix *Index) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		machine := vars["machine"]
		project, err := canonicalProject(vars["project"])
		if err != nil {
			http.Error(w, "fail", http.StatusBadRequest)
			return
		}

		res, err := ix.Release(project, machine)
		if err != nil {
			logger.Errorf("lock server: release %s/%s: %v", machine, project, err)
			http.Error(w, "fail", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, res.String())
	}
}

func acquireIndexHandler(ix *Index) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		machine := mux.Vars(req)["machine"]
		fmt.Fprint(w, ix.AcquireIndexLock(machine, false).String())
	}
}

func releaseIndexHandler(ix *Index) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		machine := mux.Vars(req)["machine"]
		fmt.Fprint(w, ix.ReleaseIndexLock(machine).String())
	}
}
