package config

type WorkerKeyStruct struct {
	PersistSlotWritesQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSlotWritesQueue: "persist_slot_writes_queue",
}
