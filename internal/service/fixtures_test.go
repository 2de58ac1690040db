package service_test

import (
	"context"
	"testing"

	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/service"
	"github.com/fxxsj/work-order-sub001/internal/testutil"
)

// fixture 一套最小可跑通全流程的基础数据：
// 客户、印刷/包装两道工序、对应车间与操作员、一个产品。
type fixture struct {
	Customer  entity.Customer
	ProcPrint entity.Process
	ProcPack  entity.Process
	DeptPrint entity.Department
	DeptPack  entity.Department
	OpPrint   entity.Operator
	OpPack    entity.Operator
	Product   entity.Product
}

func seedFixture(t *testing.T, env *testutil.TestEnv) *fixture {
	t.Helper()

	fx := &fixture{
		Customer:  entity.Customer{ID: "cust-001", Code: "C001", Name: "测试客户"},
		ProcPrint: entity.Process{ID: "proc-prt", Code: entity.ProcessCodePrint, Name: "印刷", TaskGenerationRule: entity.GenRuleGeneral, IsActive: true},
		ProcPack:  entity.Process{ID: "proc-pack", Code: entity.ProcessCodePack, Name: "包装", TaskGenerationRule: entity.GenRuleProduct, IsActive: true},
		Product:   entity.Product{ID: "prod-001", Code: "P001", Name: "彩盒", IsActive: true},
	}
	for _, obj := range []interface{}{&fx.Customer, &fx.ProcPrint, &fx.ProcPack, &fx.Product} {
		if err := env.DB.Create(obj).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	fx.DeptPrint = entity.Department{ID: "dept-prt", Code: "D-PRT", Name: "印刷车间", IsActive: true}
	fx.DeptPack = entity.Department{ID: "dept-pack", Code: "D-PACK", Name: "包装车间", IsActive: true}
	for _, dept := range []*entity.Department{&fx.DeptPrint, &fx.DeptPack} {
		if err := env.DB.Create(dept).Error; err != nil {
			t.Fatalf("seed department: %v", err)
		}
	}
	if err := env.DB.Model(&fx.DeptPrint).Association("Processes").Append(&fx.ProcPrint); err != nil {
		t.Fatalf("bind process: %v", err)
	}
	if err := env.DB.Model(&fx.DeptPack).Association("Processes").Append(&fx.ProcPack); err != nil {
		t.Fatalf("bind process: %v", err)
	}

	fx.OpPrint = entity.Operator{ID: "op-prt", Username: "op-prt", Name: "印刷工", IsActive: true}
	fx.OpPack = entity.Operator{ID: "op-pack", Username: "op-pack", Name: "包装工", IsActive: true}
	for _, op := range []*entity.Operator{&fx.OpPrint, &fx.OpPack} {
		if err := env.DB.Create(op).Error; err != nil {
			t.Fatalf("seed operator: %v", err)
		}
	}
	if err := env.DB.Model(&fx.OpPrint).Association("Departments").Append(&fx.DeptPrint); err != nil {
		t.Fatalf("bind operator: %v", err)
	}
	if err := env.DB.Model(&fx.OpPack).Association("Departments").Append(&fx.DeptPack); err != nil {
		t.Fatalf("bind operator: %v", err)
	}
	return fx
}

// createOrder 建一张印刷→包装两道工序的施工单
func createOrder(t *testing.T, env *testutil.TestEnv, actor *middleware.Actor, fx *fixture, quantity int) *entity.WorkOrder {
	t.Helper()
	wo, err := env.Services.WorkOrder.Create(context.Background(), actor, service.CreateWorkOrderRequest{
		CustomerID:         fx.Customer.ID,
		Priority:           entity.PriorityNormal,
		DeliveryDate:       "2026-12-31",
		ProductionQuantity: quantity,
		Processes: []service.ProcessItem{
			{ProcessID: fx.ProcPrint.ID, Sequence: 1, DepartmentID: &fx.DeptPrint.ID},
			{ProcessID: fx.ProcPack.ID, Sequence: 2, DepartmentID: &fx.DeptPack.ID},
		},
		Products: []service.ProductItem{
			{ProductID: fx.Product.ID, Quantity: quantity},
		},
	})
	if err != nil {
		t.Fatalf("create work order: %v", err)
	}
	return wo
}

// approvedOrder 建单并审核通过
func approvedOrder(t *testing.T, env *testutil.TestEnv, fx *fixture, quantity int) *entity.WorkOrder {
	t.Helper()
	maker := testutil.Actor("maker", false, nil)
	admin := testutil.Actor("admin", true, nil)
	wo := createOrder(t, env, maker, fx, quantity)
	wo, err := env.Services.WorkOrder.Approve(context.Background(), admin, wo.ID, "同意")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return wo
}

// startedPrintTask 开工印刷工序，返回生成的唯一任务
func startedPrintTask(t *testing.T, env *testutil.TestEnv, fx *fixture, wo *entity.WorkOrder) *entity.WorkOrderTask {
	t.Helper()
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	wop, err := env.Services.Process.Start(ctx, admin, wo.Processes[0].ID)
	if err != nil {
		t.Fatalf("start process: %v", err)
	}
	tasks, err := env.Repos.Task.ListByProcess(ctx, wop.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 generated task, got %d", len(tasks))
	}
	return &tasks[0]
}
