// Package seed holds the demo dataset loaded into empty stores: the
// permission catalog, the five system roles, branches, catalog, stock and
// one user per role.
package seed

import (
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tiendapos/backend/internal/domain"
)

const (
	RoleSuperadmin int64 = iota + 1
	RoleAdmin
	RoleCashier
	RoleDelivery
	RoleCustomer
)

const (
	BranchMain int64 = iota + 1
	BranchNorth
	BranchClosed
)

const (
	ProductCola int64 = iota + 1
	ProductWater
	ProductJuice
	ProductSandwich
	ProductSalad
	ProductChips
	ProductCookies
	ProductDetergent
	ProductBeans
)

const (
	UserAdmin int64 = iota + 1
	UserManager
	UserCashier
	UserCashier2
	UserDelivery
	UserDelivery2
	UserCustomer
)

type Dataset struct {
	Permissions []domain.Permission
	Roles       []domain.Role
	Branches    []domain.Branch
	Categories  []domain.Category
	Products    []domain.Product
	Stock       []domain.BranchProduct
	Users       []domain.User
	// DefaultPasswords is set when SEED_ADMIN_PASSWORD or SEED_USER_PASSWORD
	// were not provided.
	DefaultPasswords bool
}

var load = sync.OnceValues(build)

// Default returns the shared dataset. Password hashing runs once per process.
func Default() (Dataset, error) {
	ds, err := load()
	if err != nil {
		return Dataset{}, err
	}
	return ds.clone(), nil
}

type permissionDef struct {
	code, name string
}

var permissionDefs = []permissionDef{
	{"sales.create", "Create sales"},
	{"sales.view", "View sales"},
	{"sales.cancel", "Cancel sales"},
	{"sales.refund", "Refund sales"},
	{"sales.reports", "Sales reports"},
	{"products.view", "View products"},
	{"products.create", "Create products"},
	{"products.edit", "Edit products"},
	{"products.delete", "Delete products"},
	{"inventory.view", "View inventory"},
	{"inventory.manage", "Manage inventory"},
	{"users.view", "View users"},
	{"users.create", "Create users"},
	{"users.edit", "Edit users"},
	{"users.delete", "Delete users"},
	{"roles.view", "View roles"},
	{"roles.manage", "Manage roles"},
	{"branches.view", "View branches"},
	{"branches.manage", "Manage branches"},
	{"delivery.view", "View deliveries"},
	{"delivery.manage", "Manage deliveries"},
	{"delivery.update_status", "Update delivery status"},
	{"customer.purchase", "Purchase"},
	{"customer.history", "Purchase history"},
	{"reports.view", "View reports"},
	{"reports.export", "Export reports"},
	{"settings.view", "View settings"},
	{"settings.manage", "Manage settings"},
}

func build() (Dataset, error) {
	now := time.Now().UTC()
	ds := Dataset{}

	allCodes := make([]string, 0, len(permissionDefs))
	for i, def := range permissionDefs {
		module, _, _ := strings.Cut(def.code, ".")
		ds.Permissions = append(ds.Permissions, domain.Permission{
			ID:     int64(i + 1),
			Code:   def.code,
			Name:   def.name,
			Module: module,
		})
		allCodes = append(allCodes, def.code)
	}

	ds.Roles = []domain.Role{
		{ID: RoleSuperadmin, Name: domain.RoleSuperadmin, DisplayName: "Super Administrator", Description: "Full system access", IsSystem: true, CreatedAt: now,
			Permissions: allCodes},
		{ID: RoleAdmin, Name: domain.RoleAdmin, DisplayName: "Administrator", Description: "Branch administrator", IsSystem: true, CreatedAt: now,
			Permissions: []string{
				"sales.create", "sales.view", "sales.cancel", "sales.reports",
				"products.view", "products.create", "products.edit",
				"inventory.view", "inventory.manage",
				"users.view", "users.create", "users.edit",
				"roles.view",
				"branches.view",
				"delivery.view", "delivery.manage",
				"reports.view", "reports.export",
				"settings.view",
			}},
		{ID: RoleCashier, Name: domain.RoleCashier, DisplayName: "Cashier", Description: "Till operator", IsSystem: true, CreatedAt: now,
			Permissions: []string{"sales.create", "sales.view", "products.view", "inventory.view", "delivery.view"}},
		{ID: RoleDelivery, Name: domain.RoleDelivery, DisplayName: "Delivery", Description: "Delivery staff", IsSystem: true, CreatedAt: now,
			Permissions: []string{"delivery.view", "delivery.update_status", "sales.view"}},
		{ID: RoleCustomer, Name: domain.RoleCustomer, DisplayName: "Customer", Description: "Registered customer", IsSystem: true, CreatedAt: now,
			Permissions: []string{"customer.purchase", "customer.history", "products.view"}},
	}

	ds.Branches = []domain.Branch{
		{ID: BranchMain, Code: "SUC001", Name: "Sucursal Principal", Address: "Calle Principal 123", Phone: "+52 55 1234 5678", IsActive: true, IsMain: true, CreatedAt: now},
		{ID: BranchNorth, Code: "SUC002", Name: "Sucursal Norte", Address: "Av. Norte 45", IsActive: true, CreatedAt: now},
		{ID: BranchClosed, Code: "SUC003", Name: "Sucursal Centro", Address: "Centro 9", IsActive: false, CreatedAt: now},
	}

	ds.Categories = []domain.Category{
		{ID: 1, Name: "Bebidas", Slug: "bebidas"},
		{ID: 2, Name: "Alimentos", Slug: "alimentos"},
		{ID: 3, Name: "Snacks", Slug: "snacks"},
		{ID: 4, Name: "Limpieza", Slug: "limpieza"},
		{ID: 5, Name: "Granel", Slug: "granel"},
	}

	product := func(id int64, sku, barcode, name string, price, cost int64, category int64) domain.Product {
		bc := barcode
		cat := category
		return domain.Product{
			ID: id, SKU: sku, Barcode: &bc, Name: name,
			PriceCents: price, CostCents: cost, TaxRate: 0.16,
			CategoryID: &cat, Unit: "pieza", IsActive: true, CreatedAt: now,
		}
	}
	ds.Products = []domain.Product{
		product(ProductCola, "BEB001", "7501234567890", "Coca-Cola 600ml", 1800, 1200, 1),
		product(ProductWater, "BEB002", "7501234567891", "Agua Natural 1L", 1200, 600, 1),
		product(ProductJuice, "BEB003", "7501234567892", "Jugo de Naranja 500ml", 2500, 1500, 1),
		product(ProductSandwich, "ALI001", "7501234567893", "Sandwich Jamon y Queso", 4500, 2500, 2),
		product(ProductSalad, "ALI002", "7501234567894", "Ensalada Cesar", 5500, 3000, 2),
		product(ProductChips, "SNK001", "7501234567895", "Papas Fritas 150g", 2200, 1200, 3),
		product(ProductCookies, "SNK002", "7501234567896", "Galletas de Chocolate", 1800, 1000, 3),
		product(ProductDetergent, "LIM001", "7501234567897", "Detergente 1L", 3500, 2000, 4),
		product(ProductBeans, "GRA001", "7501234567898", "Frijol a Granel", 3200, 2100, 5),
	}
	ds.Products[ProductBeans-1].Unit = "kg"
	ds.Products[ProductBeans-1].AllowDecimalQty = true

	juicePrice := int64(2300)
	stock := func(id, branch, productID int64, qty, minStock int, custom *int64) domain.BranchProduct {
		return domain.BranchProduct{
			ID: id, BranchID: branch, ProductID: productID,
			Stock: qty, MinStock: minStock, MaxStock: 100,
			CustomPriceCents: custom, IsAvailable: true, UpdatedAt: now,
		}
	}
	// The detergent has no branch row: it is sold without stock tracking.
	ds.Stock = []domain.BranchProduct{
		stock(1, BranchMain, ProductCola, 10, 5, nil),
		stock(2, BranchMain, ProductWater, 50, 5, nil),
		stock(3, BranchMain, ProductJuice, 30, 5, &juicePrice),
		stock(4, BranchMain, ProductSandwich, 20, 5, nil),
		stock(5, BranchMain, ProductSalad, 15, 5, nil),
		stock(6, BranchMain, ProductChips, 40, 5, nil),
		stock(7, BranchMain, ProductCookies, 3, 5, nil),
		stock(8, BranchMain, ProductBeans, 25, 5, nil),
		stock(9, BranchNorth, ProductCola, 5, 5, nil),
		stock(10, BranchNorth, ProductSandwich, 8, 5, nil),
	}

	adminPwd, userPwd := os.Getenv("SEED_ADMIN_PASSWORD"), os.Getenv("SEED_USER_PASSWORD")
	if adminPwd == "" || userPwd == "" {
		ds.DefaultPasswords = true
	}
	if adminPwd == "" {
		adminPwd = "admin123"
	}
	if userPwd == "" {
		userPwd = "password123"
	}
	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		return Dataset{}, err
	}
	userHash, err := bcrypt.GenerateFromPassword([]byte(userPwd), bcrypt.DefaultCost)
	if err != nil {
		return Dataset{}, err
	}

	mainBranch := BranchMain
	user := func(id int64, username, fullName string, roleID int64, roleName string, hash []byte) domain.User {
		return domain.User{
			ID: id, Username: username, Email: username + "@tiendapos.local", FullName: fullName,
			PasswordHash: string(hash), RoleID: roleID, RoleName: roleName,
			PrimaryBranchID: &mainBranch, IsActive: true, CreatedAt: now,
		}
	}
	ds.Users = []domain.User{
		user(UserAdmin, "admin", "System Administrator", RoleSuperadmin, domain.RoleSuperadmin, adminHash),
		user(UserManager, "gerente1", "Laura Mendez", RoleAdmin, domain.RoleAdmin, userHash),
		user(UserCashier, "cajero1", "Juan Perez", RoleCashier, domain.RoleCashier, userHash),
		user(UserCashier2, "cajero2", "Ana Ruiz", RoleCashier, domain.RoleCashier, userHash),
		user(UserDelivery, "repartidor1", "Carlos Lopez", RoleDelivery, domain.RoleDelivery, userHash),
		user(UserDelivery2, "repartidor2", "Pedro Soto", RoleDelivery, domain.RoleDelivery, userHash),
		user(UserCustomer, "cliente1", "Maria Garcia", RoleCustomer, domain.RoleCustomer, userHash),
	}

	return ds, nil
}

func (ds Dataset) clone() Dataset {
	out := ds
	out.Permissions = append([]domain.Permission(nil), ds.Permissions...)
	out.Roles = make([]domain.Role, len(ds.Roles))
	for i, r := range ds.Roles {
		r.Permissions = append([]string(nil), r.Permissions...)
		out.Roles[i] = r
	}
	out.Branches = append([]domain.Branch(nil), ds.Branches...)
	out.Categories = append([]domain.Category(nil), ds.Categories...)
	out.Products = append([]domain.Product(nil), ds.Products...)
	out.Stock = append([]domain.BranchProduct(nil), ds.Stock...)
	out.Users = append([]domain.User(nil), ds.Users...)
	return out
}
