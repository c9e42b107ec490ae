//go:build js && wasm

// WASM entrypoint: exposes the study data layer to the browser as a
// StudyQuest global. The relational engine runs in memory and is persisted
// as a debounced snapshot to IndexedDB through hackpadfs, alongside the
// document store and the shadow backups, so state survives page reloads.
package main

import (
	"context"
	"encoding/json"
	"syscall/js"
	"time"

	"github.com/hack-pad/hackpadfs/indexeddb"

	"github.com/studyquest/studyquest/internal/backup"
	"github.com/studyquest/studyquest/internal/docstore"
	"github.com/studyquest/studyquest/internal/engine"
	"github.com/studyquest/studyquest/internal/logger"
	"github.com/studyquest/studyquest/internal/store"
	"github.com/studyquest/studyquest/internal/study"
)

const Version = "1.0.0"

var (
	svc          *study.Service
	relPersister *store.Persister
)

func main() {
	js.Global().Set("StudyQuest", js.ValueOf(map[string]interface{}{
		"version":                 js.FuncOf(version),
		"initialize":              js.FuncOf(initialize),
		"shutdown":                js.FuncOf(shutdown),
		"engine":                  js.FuncOf(activeEngine),
		"switchEngine":            js.FuncOf(switchEngine),
		"activePlan":              js.FuncOf(activePlan),
		"saveActivePlan":          js.FuncOf(saveActivePlan),
		"savePlanAs":              js.FuncOf(savePlanAs),
		"listPlans":               js.FuncOf(listPlans),
		"listSessions":            js.FuncOf(listSessions),
		"recordSession":           js.FuncOf(recordSession),
		"forceSyncBackupSessions": js.FuncOf(forceSyncBackupSessions),
		"validatePersistence":     js.FuncOf(validatePersistence),
		"importQuestions":         js.FuncOf(importQuestions),
		"recordAttempt":           js.FuncOf(recordAttempt),
		"exportPlan":              js.FuncOf(exportPlan),
		"importPlan":              js.FuncOf(importPlan),
		"exportData":              js.FuncOf(exportData),
		"importData":              js.FuncOf(importData),
	}))
	println("[StudyQuest] WASM Ready v" + Version)
	select {}
}

func version(this js.Value, args []js.Value) interface{} {
	return Version
}

// initialize opens the stores and brings the configured engine up.
// Args: [] (uses the "studyquest" IndexedDB database).
func initialize(this js.Value, args []js.Value) interface{} {
	log := logger.Nop()

	fs, err := indexeddb.NewFS(context.Background(), "studyquest", indexeddb.Options{})
	if err != nil {
		return errorResult("failed to create idb fs: " + err.Error())
	}

	rel, err := store.Open(":memory:", log)
	if err != nil {
		return errorResult("failed to open relational store: " + err.Error())
	}

	// An in-memory SQLite database vanishes with the page. The snapshot
	// persister restores the previous state from IndexedDB and flushes every
	// mutation back on a debounce, so settings, plans and sessions survive a
	// reload. Restore must happen before the engine manager reads db_engine.
	relPersister, err = store.NewPersister(rel, fs, "relational.json", 500*time.Millisecond, log)
	if err != nil {
		return errorResult("failed to create relational persister: " + err.Error())
	}
	if err := relPersister.Load(); err != nil {
		return errorResult("failed to restore relational store: " + err.Error())
	}

	shadow, err := backup.NewShadowStore(fs, "backup")
	if err != nil {
		return errorResult("failed to open shadow store: " + err.Error())
	}

	mgr := engine.NewManager(rel, shadow, fs, "documents.json", 500*time.Millisecond, log)
	svc = study.NewService(rel, mgr, backup.NewManager(shadow, log), log)
	if err := svc.Initialize(); err != nil {
		return errorResult("initialization failed: " + err.Error())
	}
	return okResult(nil)
}

func shutdown(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return okResult(nil)
	}
	// Final snapshot flush before the database connection goes away.
	if relPersister != nil {
		if err := relPersister.Close(); err != nil {
			return errorResult(err.Error())
		}
		relPersister = nil
	}
	if err := svc.Close(); err != nil {
		return errorResult(err.Error())
	}
	svc = nil
	return okResult(nil)
}

func activeEngine(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	return string(svc.Engine())
}

// switchEngine changes the engine preference. Args: [engine string].
func switchEngine(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("engine argument required")
	}
	if err := svc.SwitchEngine(engine.Engine(args[0].String())); err != nil {
		return errorResult(err.Error())
	}
	return okResult(nil)
}

func activePlan(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	plan, err := svc.ActivePlan()
	if err != nil {
		return errorResult(err.Error())
	}
	if plan == nil {
		return okResult(nil)
	}
	return okJSON(plan)
}

// saveActivePlan persists the plan as current. Args: [plan JSON string].
func saveActivePlan(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("plan argument required")
	}
	var plan store.StudyPlan
	if err := json.Unmarshal([]byte(args[0].String()), &plan); err != nil {
		return errorResult("invalid plan: " + err.Error())
	}
	if err := svc.SaveActivePlan(&plan); err != nil {
		return errorResult(err.Error())
	}
	return okResult(plan.ID)
}

// savePlanAs stores the plan under a name. Args: [plan JSON, name].
func savePlanAs(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	if len(args) < 2 {
		return errorResult("plan and name arguments required")
	}
	var plan store.StudyPlan
	if err := json.Unmarshal([]byte(args[0].String()), &plan); err != nil {
		return errorResult("invalid plan: " + err.Error())
	}
	id, err := svc.SavePlanAs(&plan, args[1].String())
	if err != nil {
		return errorResult(err.Error())
	}
	return okResult(id)
}

func listPlans(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	plans, err := svc.Plans()
	if err != nil {
		return errorResult(err.Error())
	}
	return okJSON(plans)
}

func listSessions(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	sessions, err := svc.Sessions()
	if err != nil {
		return errorResult(err.Error())
	}
	return okJSON(sessions)
}

// recordSession saves one session. Args: [session JSON string].
func recordSession(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("session argument required")
	}
	var session store.StudySession
	if err := json.Unmarshal([]byte(args[0].String()), &session); err != nil {
		return errorResult("invalid session: " + err.Error())
	}
	if err := svc.RecordSession(&session); err != nil {
		return errorResult(err.Error())
	}
	return okResult(session.ID)
}

func forceSyncBackupSessions(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	count, err := svc.ForceSyncBackupSessions()
	if err != nil {
		return errorResult(err.Error())
	}
	return okResult(count)
}

func validatePersistence(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	return okJSON(svc.ValidatePersistence())
}

// importQuestions runs a batch import. Args: [questions JSON array].
func importQuestions(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("questions argument required")
	}
	var questions []*store.Question
	if err := json.Unmarshal([]byte(args[0].String()), &questions); err != nil {
		return errorResult("invalid questions: " + err.Error())
	}
	result, err := svc.ImportQuestions(questions)
	if err != nil {
		return errorResult(err.Error())
	}
	return okJSON(result)
}

// recordAttempt records one answer. Args: [attempt JSON string].
func recordAttempt(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("attempt argument required")
	}
	var attempt store.QuestionAttempt
	if err := json.Unmarshal([]byte(args[0].String()), &attempt); err != nil {
		return errorResult("invalid attempt: " + err.Error())
	}
	if err := svc.RecordAttempt(&attempt); err != nil {
		return errorResult(err.Error())
	}
	return okResult(attempt.ID)
}

// exportPlan serializes one plan for sharing. Args: [plan id].
func exportPlan(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("plan id argument required")
	}
	data, err := svc.ExportPlan(args[0].String())
	if err != nil {
		return errorResult(err.Error())
	}
	if data == nil {
		return errorResult("plan " + args[0].String() + " not found")
	}
	return okResult(string(data))
}

// importPlan loads a shared plan export. Args: [JSON string].
func importPlan(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("data argument required")
	}
	id, err := svc.ImportPlan([]byte(args[0].String()))
	if err != nil {
		return errorResult(err.Error())
	}
	return okResult(id)
}

func exportData(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	data, err := svc.ExportDocumentStore()
	if err != nil {
		return errorResult(err.Error())
	}
	return okResult(string(data))
}

// importData loads an export document. Args: [JSON string, mode?].
func importData(this js.Value, args []js.Value) interface{} {
	if svc == nil {
		return errorResult("not initialized")
	}
	if len(args) < 1 {
		return errorResult("data argument required")
	}
	mode := docstore.ImportMerge
	if len(args) > 1 && args[1].String() == "replace" {
		mode = docstore.ImportReplace
	}
	if err := svc.ImportDocumentStore([]byte(args[0].String()), mode); err != nil {
		return errorResult(err.Error())
	}
	return okResult(nil)
}

func okResult(value interface{}) interface{} {
	result := map[string]interface{}{"ok": true}
	if value != nil {
		result["value"] = value
	}
	return js.ValueOf(result)
}

func okJSON(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(err.Error())
	}
	return js.ValueOf(map[string]interface{}{"ok": true, "value": string(data)})
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{"ok": false, "error": msg})
}
