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

package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	textTraceString = `^time="[a-zA-Z0-9/:. ]{26}" severity=TRACE message="traceExample"`
	textDebugString = `^time="[a-zA-Z0-9/:. ]{26}" severity=DEBUG message="debugExample"`
	textInfoString  = `^time="[a-zA-Z0-9/:. ]{26}" severity=INFO message="infoExample"`
	textWarnString  = `^time="[a-zA-Z0-9/:. ]{26}" severity=WARNING message="warningExample"`
	textErrorString = `^time="[a-zA-Z0-9/:. ]{26}" severity=ERROR message="errorExample"`
)

func redirectLogsToBuffer(buf *bytes.Buffer, level string) {
	v := new(slog.LevelVar)
	defaultLoggerFactory = &loggerFactory{writer: buf, level: level, format: "text", levelVar: v}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, v, ""))
	setLoggingLevel(level, v)
}

func emitAllLevels() {
	Tracef("traceExample")
	Debugf("debugExample")
	Infof("infoExample")
	Warnf("warningExample")
	Errorf("errorExample")
}

func outputsFor(t *testing.T, level string) []string {
	t.Helper()
	var buf bytes.Buffer
	redirectLogsToBuffer(&buf, level)

	fns := []func(){
		func() { Tracef("traceExample") },
		func() { Debugf("debugExample") },
		func() { Infof("infoExample") },
		func() { Warnf("warningExample") },
		func() { Errorf("errorExample") },
	}

	var out []string
	for _, f := range fns {
		f()
		out = append(out, buf.String())
		buf.Reset()
	}
	return out
}

func assertMatches(t *testing.T, expected []string, got []string) {
	t.Helper()
	for i := range got {
		if expected[i] == "" {
			assert.Equal(t, "", got[i])
			continue
		}
		assert.Regexp(t, regexp.MustCompile(expected[i]), got[i])
	}
}

func TestLogLevelERROROnlyEmitsError(t *testing.T) {
	out := outputsFor(t, ERROR)
	assertMatches(t, []string{"", "", "", "", textErrorString}, out)
}

func TestLogLevelWARNINGEmitsWarnAndError(t *testing.T) {
	out := outputsFor(t, WARNING)
	assertMatches(t, []string{"", "", "", textWarnString, textErrorString}, out)
}

func TestLogLevelINFOEmitsInfoAndAbove(t *testing.T) {
	out := outputsFor(t, INFO)
	assertMatches(t, []string{"", "", textInfoString, textWarnString, textErrorString}, out)
}

func TestLogLevelDEBUGEmitsDebugAndAbove(t *testing.T) {
	out := outputsFor(t, DEBUG)
	assertMatches(t, []string{"", textDebugString, textInfoString, textWarnString, textErrorString}, out)
}

func TestLogLevelTRACEEmitsEverything(t *testing.T) {
	out := outputsFor(t, TRACE)
	assertMatches(t, []string{textTraceString, textDebugString, textInfoString, textWarnString, textErrorString}, out)
}

func TestLogLevelOFFEmitsNothing(t *testing.T) {
	out := outputsFor(t, OFF)
	assertMatches(t, []string{"", "", "", "", ""}, out)
}

func TestSetLoggingLevel(t *testing.T) {
	cases := []struct {
		in       string
		expected slog.Level
	}{
		{TRACE, LevelTrace},
		{DEBUG, LevelDebug},
		{INFO, LevelInfo},
		{WARNING, LevelWarn},
		{ERROR, LevelError},
		{OFF, LevelOff},
	}
	for _, c := range cases {
		v := new(slog.LevelVar)
		setLoggingLevel(c.in, v)
		assert.Equal(t, c.expected, v.Level())
	}
}

func TestSetLogFormat(t *testing.T) {
	var buf bytes.Buffer
	redirectLogsToBuffer(&buf, INFO)

	SetLogFormat("json")
	defaultLoggerFactory.writer = &buf
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(&buf, defaultLoggerFactory.levelVar, ""))

	Infof("infoExample")
	assert.Contains(t, buf.String(), `"severity":"INFO"`)
	assert.Contains(t, buf.String(), `"message":"infoExample"`)
}
