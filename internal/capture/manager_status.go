package capture

// Status returns the get_status view. It never waits on a running command.
func (m *Manager) Status() Status {
	snap := m.session.read()
	status := Status{
		State:            snap.state,
		BeforeItemsCount: len(snap.before),
		CurrentStatus:    snap.status,
		CycleID:          snap.cycleID,
		PendingCycleID:   snap.pendingID,
	}
	if snap.state == StateMonitoring {
		status.MonitoringSince = snap.startedAt
	}
	if m.frames != nil {
		status.CameraActive = m.frames.Active()
	}
	return status
}

// State returns the current capture state.
func (m *Manager) State() State {
	return m.session.read().state
}
