package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				workspace_id VARCHAR(255),
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_workspace ON workflows(workspace_id);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE workflow_runs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id),
				status VARCHAR(50) NOT NULL,
				start_nodes JSONB,
				input JSONB,
				unauthorized_tools JSONB,
				error_message TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_runs_workflow_id ON workflow_runs(workflow_id);
			CREATE INDEX idx_workflow_runs_status ON workflow_runs(status);

			CREATE TABLE node_executions (
				run_id VARCHAR(255) NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				task_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				skip_reason VARCHAR(50),
				output JSONB,
				usage JSONB,
				error_message TEXT,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (run_id, node_id)
			);

			CREATE INDEX idx_node_executions_status ON node_executions(status);
			CREATE INDEX idx_node_executions_node_id ON node_executions(node_id);

			CREATE TABLE credit_usages (
				id VARCHAR(255) PRIMARY KEY,
				scope VARCHAR(50) NOT NULL,
				scope_id VARCHAR(255) NOT NULL,
				run_id VARCHAR(255),
				node_id VARCHAR(255),
				modality VARCHAR(100) NOT NULL,
				units BIGINT NOT NULL,
				amount DOUBLE PRECISION NOT NULL,
				due_amount DOUBLE PRECISION NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_credit_usages_scope ON credit_usages(scope, scope_id);
			CREATE INDEX idx_credit_usages_run_id ON credit_usages(run_id);

			CREATE TABLE schedules (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				cron_expression VARCHAR(255) NOT NULL,
				input JSONB,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_due ON schedules(active, next_due_at);
		`,
	}
}
